package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/auth"
	apihttp "github.com/Flarenzy/smart-ipam/internal/http"
	"github.com/Flarenzy/smart-ipam/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Run listens on cfg.Port and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%s", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}
	return Serve(ctx, cfg, listener)
}

// Serve owns listener. Storage and auth are set up before the first request
// is accepted; a failure there returns without serving.
func Serve(ctx context.Context, cfg Config, listener net.Listener) error {
	logger := slog.Default()

	services, err := Build(ctx, cfg, logger)
	if err != nil {
		_ = listener.Close()
		return err
	}
	defer services.Close()

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		_ = listener.Close()
		return err
	}
	if authenticator == nil {
		logger.WarnContext(ctx, "authentication disabled")
	}

	api := apihttp.NewAPI(logger, services.Health, services.Service, authenticator,
		apihttp.WithMetricsHandler(metrics.Handler(services.Registry)),
		apihttp.WithWriteRole(cfg.WriteRole),
	)

	server := &http.Server{
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedulerDone := make(chan struct{})
	if cfg.Schedule != "" {
		scheduler, err := NewScheduler(cfg, services, logger)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("discovery schedule: %w", err)
		}
		go func() {
			defer close(schedulerDone)
			scheduler.Run(runCtx)
		}()
	} else {
		close(schedulerDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "serving", "addr", listener.Addr().String(), "driver", cfg.Driver())
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		cancel()
		<-schedulerDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err = server.Shutdown(shutdownCtx)
	cancel()
	<-schedulerDone
	return err
}

func newAuthenticator(ctx context.Context, cfg Config) (auth.Authenticator, error) {
	return auth.NewOIDCAuthenticator(ctx, auth.Config{
		Enabled:  cfg.AuthEnabled,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		JWKSURL:  cfg.JWKSURL,
	})
}
