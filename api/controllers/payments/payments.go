package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/api/middleware"
	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/api/validators"
	internalpayments "github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

type verifyRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// PaymentResponse is what the client needs to open the gateway checkout.
type PaymentResponse struct {
	ID             string `json:"id"`
	BookingID      string `json:"booking_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
}

type VerifyResponse struct {
	Verified bool `json:"verified"`
}

// Init creates (or reuses) the gateway order for a booking with guests.
func Init(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		caller, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		bookingID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "bookingId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		key, err := validators.RequiredHeader(r, middleware.IdempotencyKeyHeader, 255)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.InitPayment(r.Context(), caller.UserID, bookingID, key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResponse(payment))
	}
}

// Verify confirms a payment reported by the client after checkout.
func Verify(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		var req verifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		verified, err := svc.VerifyFromClient(r.Context(), req.OrderID, req.PaymentID, req.Signature)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, VerifyResponse{Verified: verified})
	}
}

func toPaymentResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID.String(),
		BookingID:      p.BookingID.String(),
		GatewayOrderID: p.GatewayOrderID,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		Status:         string(p.Status),
	}
}
