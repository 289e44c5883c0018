package main

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/livo-backend/internal/consumers/analytics"
	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/outbox/idempotency"
)

func main() {
	app, err := bootstrap.Load("analytics-worker")
	if err != nil {
		app.Exit(context.Background(), "failed to load config", err)
	}
	ctx, stop := app.SignalContext()
	defer stop()

	consumer, subscription, err := build(ctx, app)
	if err != nil {
		app.Exit(ctx, "failed to start analytics worker", err)
	}
	app.Logger.Info(ctx, "analytics worker ready")

	if err := consumer.Run(ctx, subscription); err != nil && !errors.Is(err, context.Canceled) {
		app.Exit(ctx, "analytics worker failed", err)
	}
	app.Close()
}

func build(ctx context.Context, app *bootstrap.App) (*analytics.Consumer, *pubsub.Subscriber, error) {
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return nil, nil, err
	}
	pubsubClient, err := app.PubSub(ctx)
	if err != nil {
		return nil, nil, err
	}
	bqClient, err := app.BigQuery(ctx)
	if err != nil {
		return nil, nil, err
	}

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return nil, nil, errors.New("analytics subscription not configured")
	}
	manager, err := idempotency.NewManager(redisClient, app.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency manager: %w", err)
	}
	consumer, err := analytics.NewConsumer(bqClient, app.Config.BigQuery.BookingEventsTable, manager, app.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("analytics consumer: %w", err)
	}
	if err := app.ServeMetrics(ctx); err != nil {
		return nil, nil, err
	}
	return consumer, subscription, nil
}
