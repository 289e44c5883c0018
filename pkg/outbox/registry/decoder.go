package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
)

type decodeFunc func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders resolves an envelope's (event type, version) pair to a typed
// payload. Consumers register every version they still accept so producers
// can be rolled forward independently.
type Decoders struct {
	mu  sync.RWMutex
	fns map[decoderKey]decodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{fns: map[decoderKey]decodeFunc{}}
}

// Register installs a JSON decoder producing *T for eventType at version.
func Register[T any](d *Decoders, eventType enums.OutboxEventType, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns[decoderKey{eventType, version}] = func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Decode returns the typed payload. Every failure is a NonRetryableError:
// redelivering the same bytes cannot fix them.
func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	d.mu.RLock()
	fn, ok := d.fns[decoderKey{eventType, version}]
	d.mu.RUnlock()
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no decoder for %s v%d", eventType, version))
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s v%d payload missing", eventType, version))
	}
	payload, err := fn(trimmed)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s v%d: %w", eventType, version, err))
	}
	return payload, nil
}

// PaymentWorkerDecoders covers the events the payment worker applies.
func PaymentWorkerDecoders() *Decoders {
	d := NewDecoders()
	Register[payloads.PaymentCapturedEvent](d, enums.EventPaymentCaptured, 1)
	Register[payloads.RefundRequestedEvent](d, enums.EventRefundRequested, 1)
	Register[payloads.RefundUpdatedEvent](d, enums.EventRefundUpdated, 1)
	return d
}
