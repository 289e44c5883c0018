package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/livo-backend/pkg/logger"
)

type runner interface {
	Run(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Logger          *logger.Logger
	DB              pinger
	Redis           pinger
	PubSub          pinger
	PaymentConsumer runner
}

type dependency struct {
	name string
	dep  pinger
}

// Service runs the payment consumer once every backing store answers.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	payments runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.PaymentConsumer == nil {
		return nil, errors.New("payment consumer is required")
	}
	deps := []dependency{
		{name: "database", dep: params.DB},
		{name: "redis", dep: params.Redis},
		{name: "pubsub", dep: params.PubSub},
	}
	for _, d := range deps {
		if d.dep == nil {
			return nil, fmt.Errorf("%s client is required", d.name)
		}
	}
	return &Service{logg: params.Logger, deps: deps, payments: params.PaymentConsumer}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.dep.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx is cancelled or the consumer gives up.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	err := s.payments.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
	}
	return err
}
