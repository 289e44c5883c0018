package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/livo-backend/api/responses"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

// Square notifications are small. Anything larger is not from Square.
const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleWebhookEvent(ctx context.Context, event *square.WebhookEvent) error
}

// SquareSigner is the part of the Square client signature checks need.
type SquareSigner interface {
	SigningSecret() string
	NotificationURL() string
}

// SquareWebhook accepts signed payment and refund notifications. Redeliveries
// are answered 200 and dropped by the service's gateway event log.
func SquareWebhook(svc SquareWebhookService, signer SquareSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || signer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square webhooks not configured"))
			return
		}

		payload, err := verifiedBody(w, r, signer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		event, err := square.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed square event"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"gateway_event_id":   event.EventID,
				"gateway_event_type": event.Type,
			})
		}
		if err := svc.HandleWebhookEvent(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}

// verifiedBody reads the raw body and checks it against the signature
// header. The signature covers the exact bytes, so nothing may decode first.
func verifiedBody(w http.ResponseWriter, r *http.Request, signer SquareSigner) ([]byte, error) {
	signature := r.Header.Get(square.SignatureHeader)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}
	if !square.VerifyWebhookSignature(payload, signer.NotificationURL(), signer.SigningSecret(), signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}
	return payload, nil
}
