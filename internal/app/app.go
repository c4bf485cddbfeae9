package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"golang.org/x/sync/errgroup"

	api "github.com/vadimbarashkov/tinylink/internal/api/http"
	"github.com/vadimbarashkov/tinylink/internal/checker"
	"github.com/vadimbarashkov/tinylink/internal/config"
	"github.com/vadimbarashkov/tinylink/internal/database/postgres"
	"github.com/vadimbarashkov/tinylink/internal/metrics"
	"github.com/vadimbarashkov/tinylink/internal/service"
	"github.com/vadimbarashkov/tinylink/internal/validator"
	pkgpostgres "github.com/vadimbarashkov/tinylink/pkg/postgres"
)

// Run assembles the application and blocks until ctx is canceled
// or a fatal error occurs.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	db, err := pkgpostgres.New(
		ctx,
		cfg.Postgres.DSN(),
		pkgpostgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pkgpostgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pkgpostgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pkgpostgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := pkgpostgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	metrics.Init()

	logger := httplog.NewLogger("tinylink", httplog.Options{
		JSON:    cfg.Env == config.EnvProd,
		Concise: cfg.Env != config.EnvProd,
	})

	linkRepo := postgres.NewLinkRepository(db)
	linkValidator := validator.New(linkRepo, logger.Logger, validator.Config{
		Enabled: cfg.Validation.Enabled,
		Timeout: cfg.Validation.Timeout,
		Retries: cfg.Validation.Retries,
	})
	linkSvc := service.NewLinkService(linkRepo, linkValidator, cfg.ShortCodeLength)
	linkChecker := checker.New(linkRepo, linkValidator, logger.Logger, checker.Config{
		Interval:       cfg.Validation.CheckInterval,
		MaxConcurrency: cfg.Validation.MaxConcurrency,
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, linkSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	if cfg.Validation.Enabled {
		g.Go(func() error {
			return linkChecker.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
