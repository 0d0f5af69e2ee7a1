package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"relayq/internal/sweeper"
	"relayq/pkg/config"
	"relayq/pkg/keys"
	"relayq/pkg/logger"
	"relayq/pkg/queue"
	"relayq/pkg/reconnect"
	"relayq/pkg/session"
	"relayq/pkg/store"
	"relayq/pkg/transport"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	store    *store.Store
	queue    *queue.Queue
	sessions *session.Manager
	coord    *reconnect.Coordinator

	srv *http.Server
}

// New validates the config and initializes every component that does not
// need a running context. Call Run to start the coordinator, sweeper and
// HTTP server and block until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DBPath, cfg.Storage.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	// dead-letter audit trail lives next to the data
	auditDir := filepath.Join(cfg.Storage.DBPath, "state", "audit")
	if err := logger.AttachAuditFileSink(auditDir); err != nil {
		logger.Warn("audit_sink_unavailable", "dir", auditDir, "error", err)
	}

	gen := keys.NewGenerator()
	q := queue.New(st, gen, queue.Options{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		Jitter:      time.Duration(cfg.Retry.JitterMs) * time.Millisecond,
	})
	httpClient := transport.NewHTTPClient(0)
	coord := reconnect.New(q, httpClient.Transport(), cfg.Drain.RPS, cfg.Drain.Burst)

	a := &App{
		cfg:      cfg,
		version:  version,
		store:    st,
		queue:    q,
		sessions: session.New(st),
		coord:    coord,
	}
	return a, nil
}

// Run starts the background components and the HTTP server, blocking
// until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	go a.coord.Run(ctx)

	sweepCancel, err := sweeper.Start(ctx, a.store, a.coord, a.cfg)
	if err != nil {
		return err
	}
	defer sweepCancel()

	a.srv = &http.Server{
		Addr:    a.cfg.Addr(),
		Handler: a.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.srv.Addr, "version", a.version)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		if err := a.store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		_ = a.store.Close()
		return err
	}
}

// Queue exposes the request queue to embedding callers.
func (a *App) Queue() *queue.Queue { return a.queue }

// Sessions exposes the session checkpoint manager to embedding callers.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Coordinator exposes the reconnect coordinator to embedding callers.
func (a *App) Coordinator() *reconnect.Coordinator { return a.coord }
