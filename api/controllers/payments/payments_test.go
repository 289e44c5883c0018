package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/api/middleware"
	internalpayments "github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

func TestInitRequiresIdempotencyKey(t *testing.T) {
	svc := &stubService{}
	req := paymentRequest(uuid.New(), uuid.New(), "")
	resp := httptest.NewRecorder()

	Init(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, svc.initCalled)
}

func TestInitReturnsGatewayOrder(t *testing.T) {
	userID := uuid.New()
	bookingID := uuid.New()
	svc := &stubService{
		initFn: func(_ context.Context, gotUser, gotBooking uuid.UUID, key string) (*models.Payment, error) {
			require.Equal(t, userID, gotUser)
			require.Equal(t, bookingID, gotBooking)
			require.Equal(t, "pay-1", key)
			return &models.Payment{
				ID:             uuid.New(),
				BookingID:      bookingID,
				GatewayOrderID: "order_123",
				Amount:         decimal.RequireFromString("199.5"),
				Currency:       "USD",
				Status:         enums.PaymentStatusPending,
			}, nil
		},
	}
	req := paymentRequest(userID, bookingID, "pay-1")
	resp := httptest.NewRecorder()

	Init(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var envelope struct {
		Data PaymentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, "order_123", envelope.Data.GatewayOrderID)
	require.Equal(t, "199.50", envelope.Data.Amount)
	require.Equal(t, "PENDING", envelope.Data.Status)
}

func TestVerifyReturnsResult(t *testing.T) {
	svc := &stubService{
		verifyFn: func(_ context.Context, orderID, paymentID, signature string) (bool, error) {
			require.Equal(t, "order_1", orderID)
			require.Equal(t, "pay_1", paymentID)
			require.Equal(t, "sig", signature)
			return true, nil
		},
	}
	body := `{"order_id":"order_1","payment_id":"pay_1","signature":"sig"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(body))
	resp := httptest.NewRecorder()

	Verify(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"verified":true`)
}

func TestVerifyMapsInvalidSignature(t *testing.T) {
	svc := &stubService{
		verifyFn: func(context.Context, string, string, string) (bool, error) {
			return false, pkgerrors.New(pkgerrors.CodeLatePayment, internalpayments.ReasonInvalidPayment)
		},
	}
	body := `{"order_id":"order_1","payment_id":"pay_1","signature":"bad"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(body))
	resp := httptest.NewRecorder()

	Verify(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Contains(t, resp.Body.String(), internalpayments.ReasonInvalidPayment)
}

func TestVerifyRequiresFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(`{"order_id":"order_1"}`))
	resp := httptest.NewRecorder()

	Verify(&stubService{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

type stubService struct {
	initCalled bool
	initFn     func(context.Context, uuid.UUID, uuid.UUID, string) (*models.Payment, error)
	verifyFn   func(context.Context, string, string, string) (bool, error)
}

func (s *stubService) InitPayment(ctx context.Context, userID, bookingID uuid.UUID, key string) (*models.Payment, error) {
	s.initCalled = true
	return s.initFn(ctx, userID, bookingID, key)
}

func (s *stubService) VerifyFromClient(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	return s.verifyFn(ctx, orderID, paymentID, signature)
}

func (s *stubService) ConfirmPayment(context.Context, string, string, string) error { return nil }

func (s *stubService) RequestRefund(context.Context, string, string, internalpayments.RefundDirective) error {
	return nil
}

func (s *stubService) HandleWebhookEvent(context.Context, *square.WebhookEvent) error { return nil }

func (s *stubService) InitiateRefund(context.Context, internalpayments.RefundInput) (*models.Refund, error) {
	return nil, nil
}

func (s *stubService) UpdateRefundStatus(context.Context, string, string) error { return nil }

func paymentRequest(userID, bookingID uuid.UUID, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/payments", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("bookingId", bookingID.String())
	ctx := middleware.WithPrincipal(req.Context(), middleware.Principal{UserID: userID, Role: enums.UserRoleGuest})
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}
