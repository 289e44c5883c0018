package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
)

const dateLayout = "2006-01-02"

var lifecycleEvents = map[enums.BookingStatus]enums.OutboxEventType{
	enums.BookingStatusReserved:  enums.EventBookingReserved,
	enums.BookingStatusConfirmed: enums.EventBookingConfirmed,
	enums.BookingStatusCancelled: enums.EventBookingCancelled,
	enums.BookingStatusExpired:   enums.EventBookingExpired,
}

// LifecycleEvent builds the outbox event announcing booking entering status.
func LifecycleEvent(booking models.Booking, status enums.BookingStatus, reason string, actor *uuid.UUID, at time.Time) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     lifecycleEvents[status],
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		OccurredAt:    at,
		Data: payloads.BookingLifecycleEvent{
			BookingID:  booking.ID,
			HotelID:    booking.HotelID,
			RoomID:     booking.RoomID,
			UserID:     booking.UserID,
			Status:     status,
			StartDate:  booking.StartDate.Format(dateLayout),
			EndDate:    booking.EndDate.Format(dateLayout),
			RoomsCount: booking.RoomsCount,
			Amount:     booking.Amount.StringFixed(2),
			Reason:     reason,
			OccurredAt: at,
		},
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: *actor, Role: enums.UserRoleGuest.String()}
	}
	return event
}

// RefundRequest builds the outbox event asking the refund consumer to return pct of payment.
func RefundRequest(payment models.Payment, reason string, pct int, at time.Time) outbox.DomainEvent {
	paymentID := ""
	if payment.GatewayPaymentID != nil {
		paymentID = *payment.GatewayPaymentID
	}
	return outbox.DomainEvent{
		EventType:     enums.EventRefundRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    at,
		Data: payloads.RefundRequestedEvent{
			GatewayOrderID:   payment.GatewayOrderID,
			GatewayPaymentID: paymentID,
			Reason:           reason,
			Percentage:       pct,
		},
	}
}
