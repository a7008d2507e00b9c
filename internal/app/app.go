// Package app wires configuration, storage and services into a runnable
// process.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"spycat/internal/breeds"
	"spycat/internal/config"
	"spycat/internal/db"
	"spycat/internal/metrics"
	"spycat/internal/migrate"
	"spycat/internal/server"
	"spycat/internal/service"
	"spycat/internal/uow"
)

// App holds the long-lived dependencies shared by the CLI commands.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Dialect  db.Dialect
	Metrics  *metrics.Metrics
	UoW      *uow.UnitOfWork
	Breeds   *breeds.Client
	Services service.Services
}

// Open connects to the configured database, applies pending migrations and
// builds the services.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, dialect, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn, dialect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if applied > 0 {
		logger.Info("applied migrations", "count", applied, "driver", cfg.DB.Driver)
	}

	m := metrics.New()
	u := uow.New(conn, dialect)
	u.Logger = logger
	u.Metrics = m

	b := breeds.New(cfg.CatAPI)
	b.Logger = logger
	b.Metrics = m

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       conn,
		Dialect:  dialect,
		Metrics:  m,
		UoW:      u,
		Breeds:   b,
		Services: service.New(u, b, logger),
	}, nil
}

// Handler builds the HTTP API for the app.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Services:     a.Services,
		BasePath:     "/api",
		Production:   a.Config.IsProduction(),
		AllowOrigins: a.Config.AllowOrigins,
		DB:           a.DB,
		Logger:       a.Logger,
		Metrics:      a.Metrics,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewLogger returns a text or JSON slog logger at the configured level.
func NewLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Format)
	}
}
