package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/dental-whatsapp-bot/cmd/mainconfig"
	"github.com/wolfman30/dental-whatsapp-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-whatsapp-bot/internal/config"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental whatsapp bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run serves until ctx ends, then drains HTTP, in-flight conversations and
// the job runner. ready, when set, receives the bound address.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, ready func(addr string)) error {
	opts := bootstrap.Options{Logger: logger}
	if mainconfig.WantsSES(cfg) {
		client, err := mainconfig.NewSESClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		opts.SES = client
	}

	app, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close resources", "error", err)
		}
	}()

	srv := newServer(cfg.Port, app.Router)
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	if ready != nil {
		ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.Runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := app.Assistant.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain conversations: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
