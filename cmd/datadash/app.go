package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackwhitehere/acme-data-dash/internal/alert"
	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/checks"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
	"github.com/blackwhitehere/acme-data-dash/internal/connection"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
	"github.com/blackwhitehere/acme-data-dash/internal/secret"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

// app is the wired core shared by serve and run.
type app struct {
	registry *check.Registry
	runner   *runner.Runner
	alerter  *alert.Alerter
}

// buildApp resolves secrets and connections per cfg, registers the
// configured checks and binds them to a runner persisting into db.
func buildApp(ctx context.Context, cfg *config.Config, db *storage.DB, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secrets, err := secret.New(cfg.Secrets.Backend, secret.Options{
		EnvPrefix: cfg.Secrets.EnvPrefix,
		Store:     db,
		Values:    cfg.Secrets.Values,
	})
	if err != nil {
		return nil, fmt.Errorf("building secret resolver: %w", err)
	}

	var source connection.Source
	switch cfg.Connections.Source {
	case "static":
		source = connection.NewStaticSource(cfg.Connections.Profiles)
	default:
		// Profiles listed in the config file are seeded into the store.
		for _, p := range cfg.Connections.Profiles {
			if err := db.SaveProfile(ctx, p); err != nil {
				return nil, fmt.Errorf("seeding connection profile %q: %w", p.Name, err)
			}
		}
		source = db
	}
	cc := check.NewStandardContext(connection.NewResolver(source, secrets))

	built, err := checks.Build(cfg.Checks)
	if err != nil {
		return nil, err
	}
	registry, err := check.NewRegistry(built...)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	r := runner.New(registry, cc, db, logger)
	r.SetTimeout(cfg.Execution.Timeout.Duration)

	a := &app{registry: registry, runner: r}
	if cfg.Alerts.Webhook.URL != "" {
		a.alerter = alert.New(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Cooldown.Duration, logger)
		r.SetOnResult(a.alerter.Notify)
	}
	logger.Info("checks registered",
		"checks", registry.Len(),
		"secrets", cfg.Secrets.Backend,
		"connections", cfg.Connections.Source,
	)
	return a, nil
}

// close waits for in-flight alerts.
func (a *app) close() {
	if a.alerter != nil {
		a.alerter.Wait()
	}
}
