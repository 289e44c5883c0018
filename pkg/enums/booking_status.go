package enums

import "slices"

// BookingStatus tracks a booking through checkout.
type BookingStatus string

const (
	BookingStatusReserved       BookingStatus = "RESERVED"
	BookingStatusGuestsAdded    BookingStatus = "GUESTS_ADDED"
	BookingStatusPaymentPending BookingStatus = "PAYMENT_PENDING"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusExpired        BookingStatus = "EXPIRED"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusReserved,
	BookingStatusGuestsAdded,
	BookingStatusPaymentPending,
	BookingStatusConfirmed,
	BookingStatusCancelled,
	BookingStatusExpired,
}

// InFlightBookingStatuses hold reserved inventory and are subject to expiry.
var InFlightBookingStatuses = []BookingStatus{
	BookingStatusReserved,
	BookingStatusGuestsAdded,
	BookingStatusPaymentPending,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusReserved:       {BookingStatusGuestsAdded, BookingStatusExpired},
	BookingStatusGuestsAdded:    {BookingStatusGuestsAdded, BookingStatusPaymentPending, BookingStatusExpired},
	BookingStatusPaymentPending: {BookingStatusConfirmed, BookingStatusExpired},
	BookingStatusConfirmed:      {BookingStatusCancelled},
}

func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BookingStatus.
func (s BookingStatus) IsValid() bool {
	return slices.Contains(validBookingStatuses, s)
}

// IsTerminal reports whether no further transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusExpired
}

// IsInFlight reports whether the booking still holds reserved inventory.
func (s BookingStatus) IsInFlight() bool {
	return slices.Contains(InFlightBookingStatuses, s)
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return slices.Contains(bookingTransitions[s], next)
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	return parse("booking status", validBookingStatuses, value)
}
