package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ZetoOfficial/bluewave/internal/app"
	"github.com/ZetoOfficial/bluewave/internal/batch"
	"github.com/ZetoOfficial/bluewave/internal/clients"
	"github.com/ZetoOfficial/bluewave/internal/config"
	"github.com/ZetoOfficial/bluewave/internal/models"
	"github.com/ZetoOfficial/bluewave/internal/paginator"
	"github.com/ZetoOfficial/bluewave/internal/session"
	"github.com/ZetoOfficial/bluewave/internal/storage"
)

type journal interface {
	app.Journal
	Close(ctx context.Context) error
}

func build(ctx context.Context, cfg *config.Config) (*app.App, func(context.Context) error, error) {
	j, err := openJournal(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	client := clients.NewBskyClient(cfg.Service, cfg.HTTPTimeout)
	provider := session.NewProvider(client, models.Credentials{
		Identifier: cfg.Identifier,
		Secret:     cfg.AppPassword,
	})

	a := app.NewApp(provider, paginator.New(client), client, batch.NewExecutor(client), j, app.Settings{
		PageSize:       cfg.Engine.PageSize,
		MaxPages:       cfg.Engine.MaxPages,
		MaxPerRun:      cfg.Engine.MaxPerRun,
		InterItemDelay: cfg.Engine.InterItemDelay,
		DailyCap:       cfg.Engine.DailyCap,
	})
	return a, j.Close, nil
}

func openJournal(ctx context.Context, cfg *config.Config) (journal, error) {
	if cfg.Neo4jURI == "" {
		logrus.Info("NEO4J_URI not set, journal kept in memory")
		return storage.NewMemoryJournal(), nil
	}

	j, err := storage.NewNeo4jJournal(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, err
	}
	if err := j.Ping(ctx); err != nil {
		_ = j.Close(ctx)
		return nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		_ = j.Close(ctx)
		return nil, err
	}
	logrus.Info("Connected to Neo4j")
	return j, nil
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logrus.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
