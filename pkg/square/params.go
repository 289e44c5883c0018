package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// OrderCreateParams describes a single line order covering a booking.
type OrderCreateParams struct {
	LocationID     string
	ReferenceID    string
	Description    string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

func (p OrderCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateOrderRequest {
	name := strings.TrimSpace(p.Description)
	if name == "" {
		name = "Room booking"
	}
	order := &sq.Order{
		LocationID:  p.LocationID,
		ReferenceID: ptrString(strings.TrimSpace(p.ReferenceID)),
		LineItems: []*sq.OrderLineItem{
			{
				Name:           ptrString(name),
				Quantity:       strconv.Itoa(1),
				BasePriceMoney: moneyPtr(p.AmountMinor, p.Currency),
			},
		},
	}
	return &sq.CreateOrderRequest{
		Order:          order,
		IdempotencyKey: ptrString(idempotencyKey),
	}
}

// RefundParams describes a refund against a captured payment.
type RefundParams struct {
	PaymentID      string
	AmountMinor    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.AmountMinor, p.Currency),
		PaymentID:      ptrString(strings.TrimSpace(p.PaymentID)),
	}
	if trimmed := strings.TrimSpace(p.Reason); trimmed != "" {
		// Square caps refund reasons at 192 characters.
		if len(trimmed) > 192 {
			trimmed = trimmed[:192]
		}
		req.Reason = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
