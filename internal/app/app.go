package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"

	"github.com/healthconnect/feed-engine/internal/cache"
	"github.com/healthconnect/feed-engine/internal/connectivity"
	"github.com/healthconnect/feed-engine/internal/engine"
	"github.com/healthconnect/feed-engine/internal/source"
	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/logger"
	"github.com/healthconnect/feed-engine/pkg/pgx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
	),
	source.Module,
	cache.Module,
	connectivity.Module,
	engine.Module,
	fx.Invoke(
		func(c *config.Config) error {
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}

			db, err := sql.Open("postgres", c.GetDSN())
			if err != nil {
				return err
			}
			defer db.Close()

			wd, err := os.Getwd()
			if err != nil {
				return err
			}

			return goose.Up(db, filepath.Join(wd, "migrations"))
		}),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go startHttpServer(log, cfg)
			return nil
		},
	})
}

func startHttpServer(log logger.Logger, cfg *config.Config) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheckHandler(w, r, log)
	})

	log.Info(fmt.Sprintf("Starting server on :%d", cfg.App.Port))

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.Port), nil); err != nil {
		log.Error("Server failed to start: %v", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request, logger logger.Logger) {
	logger.Info("Health check request received", "Method", r.Method, "URL", r.URL.String())
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Error("Failed to write response", "Error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
