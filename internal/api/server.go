// Package api serves the RapidAid HTTP+JSON interface.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"github.com/zulandar/rapidaid/internal/coordinator"
	"github.com/zulandar/rapidaid/internal/identity"
	"github.com/zulandar/rapidaid/internal/intake"
	"github.com/zulandar/rapidaid/internal/matcher"
	"github.com/zulandar/rapidaid/internal/store"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	Store       store.Store
	Intake      *intake.Service
	Coordinator *coordinator.Coordinator
	Matcher     *matcher.Matcher
	Resolver    identity.Resolver
	Log         *zap.Logger

	// Health reports whether the backing store is reachable. Optional.
	Health func(ctx context.Context) error

	// SubmitRate limits submissions per caller, in limiter format ("10-M").
	// Empty disables the limit.
	SubmitRate string
	// RateStore backs the submit limiter. Nil uses process memory.
	RateStore limiter.Store

	// Idempotency deduplicates submissions. Nil uses process memory.
	Idempotency    IdemStore
	IdempotencyTTL time.Duration
}

func (d *Deps) validate() error {
	var missing []string
	if d.Store == nil {
		missing = append(missing, "store")
	}
	if d.Intake == nil {
		missing = append(missing, "intake")
	}
	if d.Coordinator == nil {
		missing = append(missing, "coordinator")
	}
	if d.Matcher == nil {
		missing = append(missing, "matcher")
	}
	if d.Resolver == nil {
		missing = append(missing, "resolver")
	}
	if len(missing) > 0 {
		return fmt.Errorf("api: missing dependencies: %v", missing)
	}
	return nil
}

// NewRouter builds the gin engine with every route and middleware attached.
func NewRouter(d Deps) (*gin.Engine, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Idempotency == nil {
		d.Idempotency = NewLocalIdemStore(time.Minute)
	}
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 10 * time.Minute
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Log), observeRequests())
	if err := registerRoutes(router, &d); err != nil {
		return nil, err
	}
	return router, nil
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps
	Port int
	Out  io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.Deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "RapidAid API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
