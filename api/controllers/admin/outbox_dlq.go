package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/api/validators"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
)

const maxDLQPage = 200

// DLQStore reads and replays the outbox dead-letter table.
type DLQStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (bool, error)
}

type DLQEntryResponse struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	ErrorReason   string          `json:"error_reason"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	FailedAt      time.Time       `json:"failed_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ListOutboxDLQ returns the most recent dead-lettered outbox events, without
// payloads. Optional reason and event_type query parameters filter the page.
func ListOutboxDLQ(store DLQStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseDLQFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox dlq"))
			return
		}
		out := make([]DLQEntryResponse, 0, len(rows))
		for _, row := range rows {
			entry := toDLQEntry(row)
			entry.Payload = nil
			out = append(out, entry)
		}
		responses.WriteSuccess(w, out)
	}
}

func parseDLQFilter(r *http.Request) (outbox.DLQFilter, error) {
	limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: 50, Min: 1, Max: maxDLQPage})
	if err != nil {
		return outbox.DLQFilter{}, err
	}
	reason, err := validators.QueryEnum(r, "reason", enums.ParseOutboxDLQErrorReason)
	if err != nil {
		return outbox.DLQFilter{}, err
	}
	eventType, err := validators.QueryEnum(r, "event_type", enums.ParseOutboxEventType)
	if err != nil {
		return outbox.DLQFilter{}, err
	}
	return outbox.DLQFilter{Reason: reason, EventType: eventType, Limit: limit}, nil
}

// GetOutboxDLQ returns one dead-lettered event including its payload.
func GetOutboxDLQ(store DLQStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := store.FindByEventID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find outbox dlq entry"))
			return
		}
		if row == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dlq entry not found"))
			return
		}
		responses.WriteSuccess(w, toDLQEntry(*row))
	}
}

// RequeueOutboxDLQ hands a dead-lettered event back to the relay.
func RequeueOutboxDLQ(store DLQStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := store.Requeue(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue outbox dlq entry"))
			return
		}
		if !found {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dlq entry not found"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "event_id", eventID.String()), "outbox dlq entry requeued")
		}
		responses.WriteSuccess(w, map[string]string{"event_id": eventID.String(), "status": "requeued"})
	}
}

func toDLQEntry(row models.OutboxDLQ) DLQEntryResponse {
	return DLQEntryResponse{
		EventID:       row.EventID.String(),
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID.String(),
		ErrorReason:   string(row.ErrorReason),
		ErrorMessage:  row.ErrorMessage,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
		Payload:       row.Payload,
	}
}
