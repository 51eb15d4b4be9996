// Command storefront runs the pharmacy storefront HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmaverte/storefront/internal/app"
	"github.com/pharmaverte/storefront/internal/app/httpapi"
	"github.com/pharmaverte/storefront/internal/app/storage/postgres"
	"github.com/pharmaverte/storefront/internal/config"
	"github.com/pharmaverte/storefront/pkg/logger"
	"github.com/pharmaverte/storefront/supabase"
)

func main() {
	log := logger.NewDefault("storefront")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.Options{
		Logger:             log,
		Realtime:           cfg.Supabase.Realtime,
		PrescriptionBucket: cfg.Supabase.PrescriptionBucket,
	}

	switch cfg.Backend {
	case config.BackendMemory:
		opts.Stores = app.NewMemoryStores()
		log.Warn("using the in-memory backend; data is lost on restart")

	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.AnonKey,
			Retry:  func() *supabase.RetryPolicy { p := supabase.DefaultRetryPolicy(); return &p }(),
		})
		if err != nil {
			log.WithError(err).Error("failed to create gateway client")
			os.Exit(1)
		}
		opts.Client = client
		opts.Stores = app.NewSupabaseStores(client, log)

	case config.BackendPostgres:
		store, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.WithError(err).Error("failed to connect to postgres")
			os.Exit(1)
		}
		defer store.Close()
		opts.Stores = app.Stores{
			Catalog:       store,
			Favorites:     store,
			Searches:      store,
			Profiles:      store,
			Prescriptions: store,
			Orders:        store,
		}
		// Auth and uploads still go through the gateway when configured.
		if cfg.Supabase.URL != "" && cfg.Supabase.AnonKey != "" {
			client, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.AnonKey})
			if err != nil {
				log.WithError(err).Error("failed to create gateway client")
				os.Exit(1)
			}
			opts.Client = client
		}
	}

	application := app.New(opts)
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewHandler(application).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("storefront listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}
}
