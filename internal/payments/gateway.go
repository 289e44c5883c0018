package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

// OrderRequest opens a gateway order for a booking.
type OrderRequest struct {
	ReferenceID    string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// RefundRequest returns money for a captured gateway payment.
type RefundRequest struct {
	PaymentID      string
	AmountMinor    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult is the gateway's view of a refund it accepted.
type RefundResult struct {
	ID     string
	Status enums.RefundStatus
}

// Gateway is the payment provider surface the engine depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type squareClient interface {
	CreateOrder(ctx context.Context, params square.OrderCreateParams) (*sq.Order, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

type squareGateway struct {
	client squareClient
}

// NewSquareGateway adapts the Square client to Gateway.
func NewSquareGateway(client squareClient) Gateway {
	return &squareGateway{client: client}
}

func (g *squareGateway) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	order, err := g.client.CreateOrder(ctx, square.OrderCreateParams{
		ReferenceID:    req.ReferenceID,
		Description:    "Room booking " + req.ReferenceID,
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	if order == nil || order.ID == nil || *order.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "square returned an order without id")
	}
	return *order.ID, nil
}

func (g *squareGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	refund, err := g.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      req.PaymentID,
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return RefundResult{}, err
	}
	if refund == nil {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned an empty refund")
	}
	status := ""
	if refund.Status != nil {
		status = *refund.Status
	}
	return RefundResult{ID: refund.ID, Status: ParseGatewayRefundStatus(status)}, nil
}

// ParseGatewayRefundStatus maps a gateway status string, defaulting to PENDING.
func ParseGatewayRefundStatus(raw string) enums.RefundStatus {
	status, err := enums.ParseRefundStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return enums.RefundStatusPending
	}
	return status
}

// MinorUnits converts an amount to the gateway's smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// RefundAmount is pct percent of amount, rounded half up to cents.
func RefundAmount(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(2)
}
