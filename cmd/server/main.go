package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/gridsync/internal/config"
	"github.com/DoyleJ11/gridsync/internal/httpapi"
	"github.com/DoyleJ11/gridsync/internal/hub"
	"github.com/DoyleJ11/gridsync/internal/logging"
	"github.com/DoyleJ11/gridsync/internal/store"
	"github.com/DoyleJ11/gridsync/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, log)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:   h,
		Store: st,
		WS: ws.Options{
			OriginPatterns:  cfg.AllowedOrigins,
			MaxMessageBytes: cfg.MaxMessageBytes,
			RatePerSecond:   float64(cfg.RatePerSecond),
			Burst:           cfg.RateBurst,
		},
		Logger: log,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("persistent", cfg.DatabaseURL != ""))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Send(hub.ShutdownHub{})
		<-h.Done()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(cfg config.Server, log *zap.Logger) (store.Store, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("GRIDSYNC_DATABASE_URL not set; grids live in memory only")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	gs, err := store.OpenPostgres(cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	return gs, gs.Close, nil
}
