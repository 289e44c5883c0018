package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxIdleBackoff      = 10 * time.Second
	maxJitter           = 250 * time.Millisecond
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher is the slice of *pubsub.Publisher the relay uses. Messages carry
// an ordering key, so a failed publish pauses that key until ResumePublish.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type RelayParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txDB
	Topics     topicSource
	Outbox     outboxStore
	Registry   resolver
	DeadLetter deadLetters
	Metrics    *metrics.OutboxMetrics
	// Publishers overrides how a topic name becomes a publisher.
	Publishers func(topic string) publisher
}

// Relay drains committed outbox rows to Pub/Sub. Rows are claimed with SKIP
// LOCKED inside one transaction per batch, so replicas never publish the same
// row twice concurrently. Within a batch, once a row for an aggregate fails,
// later rows for that aggregate wait for the next batch so a booking's
// lifecycle events are never published out of order.
type Relay struct {
	logg        *logger.Logger
	db          txDB
	topics      topicSource
	outbox      outboxStore
	registry    resolver
	deadLetter  deadLetters
	metrics     *metrics.OutboxMetrics
	newPub      func(topic string) publisher
	publishers  map[string]publisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Topics == nil:
		return nil, errors.New("pubsub client is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DeadLetter == nil:
		return nil, errors.New("dlq repository is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		topics:      p.Topics,
		outbox:      p.Outbox,
		registry:    p.Registry,
		deadLetter:  p.DeadLetter,
		metrics:     p.Metrics,
		newPub:      p.Publishers,
		publishers:  map[string]publisher{},
		batchSize:   orDefault(p.Config.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(p.Config.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	if r.newPub == nil {
		r.newPub = func(topic string) publisher {
			if pub := p.Topics.Publisher(topic); pub != nil {
				return gcpPublisher{pub}
			}
			return nil
		}
	}
	return r, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; errors back off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.topics.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.poll
	for {
		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= r.batchSize:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}
		if err := sleep(ctx, wait+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

// Stop flushes every publisher the relay opened.
func (r *Relay) Stop() {
	for _, pub := range r.publishers {
		pub.Stop()
	}
}

// drain handles one batch and returns how many rows it claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		blocked := map[uuid.UUID]struct{}{}
		for _, row := range rows {
			if _, held := blocked[row.AggregateID]; held {
				r.metrics.IncRow(string(row.EventType), metrics.OutboxDeferred)
				continue
			}
			delivered, err := r.relayRow(ctx, tx, row)
			if err != nil {
				return err
			}
			if !delivered {
				blocked[row.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	return claimed, err
}

// relayRow publishes one row and records the outcome in tx. It reports
// whether the row left the pending set in a way that lets later rows for the
// same aggregate proceed.
func (r *Relay) relayRow(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (bool, error) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"attempt":      row.AttemptCount + 1,
	})

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return true, r.deadLetterRow(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	err = r.publish(ctx, row, resolved)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		if err := r.outbox.MarkPublishedTx(tx, row.ID); err != nil {
			return false, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.IncRow(string(row.EventType), metrics.OutboxPublished)
		r.metrics.ObserveLag(string(row.EventType), r.now().Sub(row.CreatedAt))
		r.logg.Info(logCtx, "outbox event published")
		return true, nil
	case errors.As(err, &permanent):
		return true, r.deadLetterRow(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	case row.AttemptCount+1 >= r.maxAttempts:
		return true, r.deadLetterRow(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err))
	default:
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
		if err := r.outbox.MarkFailedTx(tx, row.ID, err); err != nil {
			return false, fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
		r.metrics.IncRow(string(row.EventType), metrics.OutboxRetried)
		return false, nil
	}
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub, err := r.publisherFor(topic)
	if err != nil {
		return err
	}
	key := row.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   key,
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(pubCtx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	if _, err := res.Get(pubCtx); err != nil {
		pub.ResumePublish(key)
		return err
	}
	return nil
}

func (r *Relay) publisherFor(topic string) (publisher, error) {
	if pub, ok := r.publishers[topic]; ok {
		return pub, nil
	}
	pub := r.newPub(topic)
	if pub == nil {
		return nil, registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	r.publishers[topic] = pub
	return pub, nil
}

func (r *Relay) deadLetterRow(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        msg,
	}), "outbox event moved to dlq")

	if err := r.deadLetter.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	r.metrics.IncRow(string(row.EventType), metrics.OutboxDeadLettered)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
