package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/rapidaid/internal/config"
	"github.com/zulandar/rapidaid/internal/db"
	"github.com/zulandar/rapidaid/internal/telegraph"
	"github.com/zulandar/rapidaid/internal/telegraph/discord"
	"github.com/zulandar/rapidaid/internal/telegraph/slack"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send the unclaimed-request digest now",
		Long: `Lists requests that have been pending longer than telegraph.stale_after_min
and posts them to the configured chat channel. With --dry-run, or when no
platform is configured, the digest is printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, configPath, dryRun)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of posting it")
	return cmd
}

func runDigest(cmd *cobra.Command, configPath string, dryRun bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	tcfg := cfg.Telegraph
	if dryRun {
		tcfg.Platform = ""
	}
	adapter, err := newAdapter(tcfg, out)
	if err != nil {
		return err
	}
	defer adapter.Close()

	daemon, err := newDigestDaemon(cfg, newStore(cfg, gormDB), adapter, nil)
	if err != nil {
		return err
	}
	n, err := daemon.Fire(context.Background())
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(out, "No requests pending longer than %dm.\n", cfg.Telegraph.StaleAfterMin)
		return nil
	}
	if tcfg.Platform != "" {
		fmt.Fprintf(out, "Posted %d requests to %s.\n", n, tcfg.Platform)
	}
	return nil
}

// newAdapter returns the chat adapter for the configured platform. With no
// platform, messages are written to out.
func newAdapter(cfg config.TelegraphConfig, out io.Writer) (telegraph.Adapter, error) {
	switch cfg.Platform {
	case "slack":
		return slack.New(slack.AdapterOpts{BotToken: cfg.Slack.Token, ChannelID: cfg.Slack.Channel})
	case "discord":
		return discord.New(discord.AdapterOpts{BotToken: cfg.Discord.Token, ChannelID: cfg.Discord.Channel})
	case "":
		return telegraph.NewWriterAdapter(out), nil
	default:
		return nil, fmt.Errorf("unknown telegraph platform %q", cfg.Platform)
	}
}

func newDigestDaemon(cfg *config.Config, src telegraph.PendingSource, adapter telegraph.Adapter, log *zap.Logger) (*telegraph.Daemon, error) {
	return telegraph.NewDaemon(telegraph.DaemonOpts{
		Source:     src,
		Adapter:    adapter,
		Schedule:   cfg.Telegraph.DigestCron,
		StaleAfter: time.Duration(cfg.Telegraph.StaleAfterMin) * time.Minute,
		Log:        log,
	})
}
