package telegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Daemon posts the unclaimed-request digest to a chat channel on a cron
// schedule.
type Daemon struct {
	src        PendingSource
	adapter    Adapter
	schedule   string
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Source     PendingSource
	Adapter    Adapter
	Schedule   string        // 5-field cron expression
	StaleAfter time.Duration // pending longer than this is reported
	Log        *zap.Logger   // defaults to a no-op logger
	Now        func() time.Time
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("telegraph: source is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.StaleAfter <= 0 {
		return nil, fmt.Errorf("telegraph: stale-after must be positive")
	}
	if _, err := ParseSchedule(opts.Schedule); err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Daemon{
		src:        opts.Source,
		adapter:    opts.Adapter,
		schedule:   opts.Schedule,
		staleAfter: opts.StaleAfter,
		log:        opts.Log.Named("telegraph"),
		now:        opts.Now,
	}, nil
}

// Run schedules the digest and blocks until ctx is cancelled. On shutdown it
// waits for an in-flight digest and closes the adapter.
func (d *Daemon) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(d.schedule, func() {
		if _, err := d.Fire(ctx); err != nil {
			d.log.Warn("digest failed", zap.Error(err))
		}
	}); err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: schedule digest: %w", err)
	}

	d.log.Info("digest scheduled", zap.String("cron", d.schedule), zap.Duration("stale_after", d.staleAfter))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	if err := d.adapter.Close(); err != nil {
		return fmt.Errorf("telegraph: close adapter: %w", err)
	}
	return nil
}

// Fire builds and sends one digest. It reports how many requests were
// included; zero means nothing was stale and nothing was sent.
func (d *Daemon) Fire(ctx context.Context) (int, error) {
	msg, err := BuildDigest(ctx, d.src, d.now(), d.staleAfter)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		d.log.Debug("no stale requests")
		return 0, nil
	}
	if err := d.adapter.Send(ctx, *msg); err != nil {
		return 0, fmt.Errorf("telegraph: send digest: %w", err)
	}
	d.log.Info("digest sent", zap.Int("requests", len(msg.Events)))
	return len(msg.Events), nil
}
