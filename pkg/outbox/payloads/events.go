package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

// BookingLifecycleEvent is shared by booking_reserved, booking_confirmed,
// booking_cancelled and booking_expired.
type BookingLifecycleEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	HotelID    uuid.UUID           `json:"hotel_id"`
	RoomID     uuid.UUID           `json:"room_id"`
	UserID     uuid.UUID           `json:"user_id"`
	Status     enums.BookingStatus `json:"status"`
	StartDate  string              `json:"start_date"`
	EndDate    string              `json:"end_date"`
	RoomsCount int                 `json:"rooms_count"`
	Amount     string              `json:"amount"`
	Reason     string              `json:"reason,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// PaymentCapturedEvent carries a verified gateway capture to the payment consumer.
type PaymentCapturedEvent struct {
	GatewayEventID   string `json:"gateway_event_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// RefundRequestedEvent asks the refund consumer to return money for a payment.
type RefundRequestedEvent struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Reason           string `json:"reason"`
	Percentage       int    `json:"percentage"`
}

// RefundUpdatedEvent reports a gateway side refund status change.
type RefundUpdatedEvent struct {
	GatewayRefundID string `json:"gateway_refund_id"`
	Status          string `json:"status"`
}
