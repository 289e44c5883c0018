package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/logger"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func healthy() pinger { return pingFunc(func(context.Context) error { return nil }) }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunStopsWhenDependencyIsDown(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		DB:     healthy(),
		Redis:  pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		PubSub: healthy(),
		PaymentConsumer: runFunc(func(context.Context) error {
			started = true
			return nil
		}),
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "redis ping failed")
	require.False(t, started)
}

func TestRunReturnsConsumerResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		DB:     healthy(),
		Redis:  healthy(),
		PubSub: healthy(),
		PaymentConsumer: runFunc(func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}),
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceValidation(t *testing.T) {
	consumer := runFunc(func(context.Context) error { return nil })
	_, err := NewService(ServiceParams{DB: healthy(), Redis: healthy(), PubSub: healthy(), PaymentConsumer: consumer})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger(), DB: healthy(), Redis: healthy(), PubSub: healthy()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger(), DB: healthy(), PubSub: healthy(), PaymentConsumer: consumer})
	require.ErrorContains(t, err, "redis client is required")
}
