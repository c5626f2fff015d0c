package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/rapidaid/internal/api"
	"github.com/zulandar/rapidaid/internal/config"
	"github.com/zulandar/rapidaid/internal/coordinator"
	"github.com/zulandar/rapidaid/internal/db"
	"github.com/zulandar/rapidaid/internal/identity"
	"github.com/zulandar/rapidaid/internal/intake"
	"github.com/zulandar/rapidaid/internal/logging"
	"github.com/zulandar/rapidaid/internal/matcher"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the SOS API and, when a chat platform is configured, posts the unclaimed-request digest on schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	var rdb redis.UniversalClient
	if cfg.Cache.Type == "redis" {
		rdb, err = connectRedis(ctx, cfg.Cache.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		log.Info("using redis cache", zap.String("addr", cfg.Cache.Redis.Addr))
	}

	deps, err := buildDeps(cfg, gormDB, rdb, log)
	if err != nil {
		return err
	}

	if cfg.Telegraph.Platform != "" {
		adapter, err := newAdapter(cfg.Telegraph, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		daemon, err := newDigestDaemon(cfg, deps.Store, adapter, log)
		if err != nil {
			adapter.Close()
			return err
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := daemon.Run(ctx); err != nil {
				log.Error("telegraph stopped", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	return api.Start(ctx, api.StartOpts{
		Deps: deps,
		Port: cfg.Server.Port,
		Out:  cmd.OutOrStdout(),
	})
}

// buildDeps wires the API's collaborators from config. rdb may be nil, in
// which case idempotency keys and rate limits stay in process memory.
func buildDeps(cfg *config.Config, gormDB *gorm.DB, rdb redis.UniversalClient, log *zap.Logger) (api.Deps, error) {
	timeout := storeTimeout(cfg)
	s := newStore(cfg, gormDB)

	limitStore, err := api.NewLimiterStore(rdb)
	if err != nil {
		return api.Deps{}, err
	}
	var idem api.IdemStore
	if rdb != nil {
		idem = api.NewRedisIdemStore(rdb)
	}

	resolver := identity.NewCachedResolver(
		identity.NewDBResolver(gormDB, timeout),
		cfg.Identity.CacheSize,
		time.Duration(cfg.Identity.CacheTTLSec)*time.Second,
	)

	return api.Deps{
		Store:          s,
		Intake:         intake.New(s, intake.WithLogger(log)),
		Coordinator:    coordinator.New(s, coordinator.WithLogger(log)),
		Matcher:        matcher.New(s, cfg.Matcher.MaxCandidates),
		Resolver:       resolver,
		Log:            log,
		Health:         pingDB(gormDB),
		SubmitRate:     cfg.Server.SubmitRate,
		RateStore:      limitStore,
		Idempotency:    idem,
		IdempotencyTTL: time.Duration(cfg.Server.IdempotencyTTLSec) * time.Second,
	}, nil
}

func pingDB(gormDB *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func connectRedis(ctx context.Context, rc config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", rc.Addr, err)
	}
	return client, nil
}
