package payments

import (
	"context"
	"testing"

	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

type stubSquare struct {
	order      *sq.Order
	refund     *sq.PaymentRefund
	lastOrder  square.OrderCreateParams
	lastRefund square.RefundParams
}

func (s *stubSquare) CreateOrder(_ context.Context, params square.OrderCreateParams) (*sq.Order, error) {
	s.lastOrder = params
	return s.order, nil
}

func (s *stubSquare) RefundPayment(_ context.Context, params square.RefundParams) (*sq.PaymentRefund, error) {
	s.lastRefund = params
	return s.refund, nil
}

func TestSquareGatewayCreateOrder(t *testing.T) {
	id := "sq_order_1"
	stub := &stubSquare{order: &sq.Order{ID: &id}}
	gateway := NewSquareGateway(stub)

	orderID, err := gateway.CreateOrder(context.Background(), OrderRequest{
		ReferenceID:    "booking-1",
		AmountMinor:    32049,
		Currency:       "USD",
		IdempotencyKey: "order-booking-1",
	})
	require.NoError(t, err)
	require.Equal(t, id, orderID)
	require.Equal(t, int64(32049), stub.lastOrder.AmountMinor)
	require.Equal(t, "booking-1", stub.lastOrder.ReferenceID)

	stub.order = &sq.Order{}
	_, err = gateway.CreateOrder(context.Background(), OrderRequest{ReferenceID: "booking-2"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestSquareGatewayRefund(t *testing.T) {
	status := "COMPLETED"
	stub := &stubSquare{refund: &sq.PaymentRefund{ID: "sq_refund_1", Status: &status}}
	gateway := NewSquareGateway(stub)

	result, err := gateway.Refund(context.Background(), RefundRequest{PaymentID: "pay_1", AmountMinor: 500, Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, "sq_refund_1", result.ID)
	require.Equal(t, enums.RefundStatusCompleted, result.Status)
	require.Equal(t, "pay_1", stub.lastRefund.PaymentID)

	stub.refund = nil
	_, err = gateway.Refund(context.Background(), RefundRequest{PaymentID: "pay_1"})
	require.Error(t, err)
}
