package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIsExactMatch(t *testing.T) {
	status, err := ParsePaymentStatus("SUCCESSFUL")
	require.NoError(t, err)
	require.Equal(t, PaymentStatusSuccessful, status)

	_, err = ParsePaymentStatus("successful")
	require.EqualError(t, err, `invalid payment status "successful"`)

	role, err := ParseUserRole("hotel_manager")
	require.NoError(t, err)
	require.Equal(t, UserRoleHotelManager, role)

	_, err = ParseOutboxEventType("booking_lost")
	require.EqualError(t, err, `invalid event type "booking_lost"`)

	reason, err := ParseOutboxDLQErrorReason("")
	require.NoError(t, err)
	require.Empty(t, reason)
}

func TestIsValid(t *testing.T) {
	require.True(t, RefundStatusRejected.IsValid())
	require.False(t, RefundStatus("VOID").IsValid())
	require.True(t, GenderOther.IsValid())
	require.False(t, Gender("").IsValid())
	require.True(t, AggregateRefund.IsValid())
	require.True(t, PaymentStatusRefunded.IsSettled())
	require.False(t, PaymentStatusFailed.IsSettled())
}
