package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/registry"
)

func main() {
	app, err := bootstrap.Load("outbox-publisher")
	if err != nil {
		app.Exit(context.Background(), "failed to load config", err)
	}
	ctx, stop := app.SignalContext()
	defer stop()

	relay, err := build(ctx, app)
	if err != nil {
		app.Exit(ctx, "failed to start outbox publisher", err)
	}
	// Flush publishers before the pubsub client goes away.
	app.OnClose("relay", func() error {
		relay.Stop()
		return nil
	})
	app.Logger.Info(ctx, "starting outbox publisher")

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Exit(ctx, "outbox publisher stopped unexpectedly", err)
	}
	app.Close()
	app.Logger.Info(ctx, "outbox publisher shutting down gracefully")
}

func build(ctx context.Context, app *bootstrap.App) (*Relay, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	pubsubClient, err := app.PubSub(ctx)
	if err != nil {
		return nil, err
	}
	eventRegistry, err := registry.NewEventRegistry(app.Config.PubSub)
	if err != nil {
		return nil, fmt.Errorf("event registry: %w", err)
	}
	relay, err := NewRelay(RelayParams{
		Config:     app.Config.Outbox,
		Logger:     app.Logger,
		DB:         dbClient,
		Topics:     pubsubClient,
		Outbox:     outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		DeadLetter: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:    metrics.NewOutboxMetrics(app.Registerer()),
	})
	if err != nil {
		return nil, fmt.Errorf("outbox relay: %w", err)
	}
	if err := app.ServeMetrics(ctx); err != nil {
		return nil, err
	}
	return relay, nil
}
