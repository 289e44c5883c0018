package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 5 * time.Minute

// Lease is the cluster-wide claim a cron-worker replica holds while it runs
// due jobs. Only one replica may hold it at a time.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	// Extend pushes the expiry out by another ttl. It reports false when the
	// lease expired and was taken over by someone else.
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLease holds the schedule lease as a Redis key whose value is a
// per-acquisition token.
type RedisLease struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

// NewRedisLease constructs a lease on key. A non-positive ttl falls back to
// five minutes.
func NewRedisLease(store leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	if key == "" {
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	if l.token != "" {
		return l.Extend(ctx)
	}
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim lease %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *RedisLease) Extend(ctx context.Context) (bool, error) {
	if l.token == "" {
		return false, nil
	}
	ok, err := l.store.ExpireIfValue(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend lease %s: %w", l.key, err)
	}
	if !ok {
		l.token = ""
	}
	return ok, nil
}

// Release drops the lease if this holder still owns it. Releasing a lease
// that was never acquired, or was lost, is a no-op.
func (l *RedisLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
