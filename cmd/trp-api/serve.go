package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/logging"
	"github.com/pandeptwidyaop/trp-api/internal/metrics"
	"github.com/pandeptwidyaop/trp-api/internal/router"
	"github.com/pandeptwidyaop/trp-api/internal/services"
	"github.com/pandeptwidyaop/trp-api/internal/validation"
	"github.com/pandeptwidyaop/trp-api/internal/version"
)

const gracefulShutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, args []string) error {
	fs, common := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	access := logging.NewAccess(cfg.Logging)

	if err := validation.ValidateCredentials(cfg.Auth.Username, cfg.Auth.Password); err != nil {
		return fmt.Errorf("refusing to start with unsafe basic-auth credentials: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("error closing database")
		}
	}()

	// The API starts even when the database is down; liveness reports it.
	pingCtx, cancelPing := context.WithTimeout(ctx, cfg.Database.GetConnectTimeout())
	if err := db.Ping(pingCtx); err != nil {
		log.WithError(err).WithField("dsn", cfg.Database.RedactedDSN()).Warn("database not reachable at startup")
	}
	cancelPing()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	m := metrics.New()
	m.RegisterDB(db.DB.DB)

	r := router.New(cfg, log, access,
		services.NewRecordService(db),
		services.NewHealthService(db, 5*time.Second),
		m)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           r,
		ReadTimeout:       cfg.Server.GetReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.GetWriteTimeout(),
		IdleTimeout:       cfg.Server.GetIdleTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"version": version.Version,
			"addr":    srv.Addr,
			"env":     cfg.Env,
		}).Info("TRP API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	log.Info("TRP API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
