// Package coordinator serializes claims and resolutions of SOS requests.
// Every operation reads the record, validates the transition with the
// lifecycle engine, and writes back with a version check so that two
// concurrent claims cannot both succeed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rapidaid_coordinator_operations_total",
	Help: "Claim and resolve attempts by outcome.",
}, []string{"op", "outcome"})

// Store is the subset of the request store the coordinator needs.
type Store interface {
	GetRequest(ctx context.Context, id string) (*models.SOSRequest, error)
	GetResponder(ctx context.Context, id string) (*models.Responder, error)
	GetResponderActiveAssignment(ctx context.Context, responderID string) (string, error)
	PutRequestIfUnchanged(ctx context.Context, rec *models.SOSRequest, expectedVersion int) error
}

// Coordinator performs state changes on SOS requests.
type Coordinator struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New returns a Coordinator over store.
func New(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		log:   zap.NewNop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Claim assigns requestID to responderID on behalf of caller. A request
// that is no longer pending yields lifecycle.ErrAlreadyClaimed; a responder
// already holding another request yields lifecycle.ErrResponderBusy.
func (c *Coordinator) Claim(ctx context.Context, requestID, responderID string, caller lifecycle.Caller) (*models.SOSRequest, error) {
	rec, err := c.claim(ctx, requestID, responderID, caller)
	c.observe("claim", requestID, caller, err, zap.String("responder", responderID))
	return rec, err
}

func (c *Coordinator) claim(ctx context.Context, requestID, responderID string, caller lifecycle.Caller) (*models.SOSRequest, error) {
	rec, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: claim %s: %w", requestID, err)
	}
	if responderID == "" {
		return nil, fmt.Errorf("coordinator: claim %s: %w: responder id is required", requestID, lifecycle.ErrInvalidResponder)
	}
	if err := lifecycle.AuthorizeAssign(caller, responderID); err != nil {
		return nil, fmt.Errorf("coordinator: claim %s: %w", requestID, err)
	}
	if rec.Status != lifecycle.StatusPending {
		return nil, alreadyClaimed(rec)
	}
	if _, err := c.store.GetResponder(ctx, responderID); err != nil {
		return nil, fmt.Errorf("coordinator: claim %s: responder %s: %w", requestID, responderID, err)
	}
	active, err := c.store.GetResponderActiveAssignment(ctx, responderID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: claim %s: %w", requestID, err)
	}

	next, err := lifecycle.Apply(rec, lifecycle.Assign(responderID, active, c.now()), caller)
	if err != nil {
		return nil, fmt.Errorf("coordinator: claim %s: %w", requestID, err)
	}

	err = c.store.PutRequestIfUnchanged(ctx, next, rec.Version)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, lifecycle.ErrVersionConflict):
		return nil, c.claimConflict(ctx, requestID, err)
	default:
		return nil, fmt.Errorf("coordinator: claim %s: %w", requestID, err)
	}
}

// claimConflict explains a lost compare-and-swap by re-reading the record.
func (c *Coordinator) claimConflict(ctx context.Context, requestID string, cause error) error {
	cur, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("coordinator: claim %s: re-read: %w", requestID, err)
	}
	if cur.Status != lifecycle.StatusPending {
		return alreadyClaimed(cur)
	}
	return fmt.Errorf("coordinator: claim %s: %w: %w", requestID, lifecycle.ErrStoreUnavailable, cause)
}

func alreadyClaimed(rec *models.SOSRequest) error {
	return fmt.Errorf("coordinator: claim %s: %w by %s (status %s)",
		rec.ID, lifecycle.ErrAlreadyClaimed, rec.AssignedResponderID, rec.Status)
}

// Resolve marks requestID resolved on behalf of caller and releases the
// responder's assignment. Resolving a request that is not assigned yields
// lifecycle.ErrInvalidTransition.
func (c *Coordinator) Resolve(ctx context.Context, requestID string, caller lifecycle.Caller) (*models.SOSRequest, error) {
	rec, err := c.resolve(ctx, requestID, caller)
	c.observe("resolve", requestID, caller, err)
	return rec, err
}

func (c *Coordinator) resolve(ctx context.Context, requestID string, caller lifecycle.Caller) (*models.SOSRequest, error) {
	rec, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve %s: %w", requestID, err)
	}
	next, err := lifecycle.Apply(rec, lifecycle.Resolve(c.now()), caller)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve %s: %w", requestID, err)
	}

	err = c.store.PutRequestIfUnchanged(ctx, next, rec.Version)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, lifecycle.ErrVersionConflict):
		cur, rerr := c.store.GetRequest(ctx, requestID)
		if rerr != nil {
			return nil, fmt.Errorf("coordinator: resolve %s: re-read: %w", requestID, rerr)
		}
		if cur.Status == lifecycle.StatusResolved {
			return nil, fmt.Errorf("coordinator: resolve %s: %w: already resolved by %s",
				requestID, lifecycle.ErrInvalidTransition, cur.UpdatedBy)
		}
		return nil, fmt.Errorf("coordinator: resolve %s: %w: %w", requestID, lifecycle.ErrStoreUnavailable, err)
	default:
		return nil, fmt.Errorf("coordinator: resolve %s: %w", requestID, err)
	}
}

// observe records the outcome of an operation in logs and metrics.
func (c *Coordinator) observe(op, requestID string, caller lifecycle.Caller, err error, fields ...zap.Field) {
	code := lifecycle.Code(err)
	operationsTotal.WithLabelValues(op, code).Inc()

	fields = append(fields,
		zap.String("request", requestID),
		zap.String("caller", caller.ID),
		zap.String("role", caller.Role),
		zap.String("outcome", code))
	switch {
	case err == nil:
		c.log.Info(op, fields...)
	case lifecycle.Retryable(err) || code == "internal":
		c.log.Warn(op, append(fields, zap.Error(err))...)
	default:
		c.log.Debug(op, append(fields, zap.Error(err))...)
	}
}
