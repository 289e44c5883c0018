package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		kind, name, want string
	}{
		{"topics", "livo-booking-events", "projects/livo-prod/topics/livo-booking-events"},
		{"subscriptions", " livo-payment-events-sub ", "projects/livo-prod/subscriptions/livo-payment-events-sub"},
		{"topics", "projects/other/topics/shared", "projects/other/topics/shared"},
		{"subscriptions", "projects/other/topics/shared", "projects/livo-prod/subscriptions/projects/other/topics/shared"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, resourceName("livo-prod", tc.kind, tc.name))
	}
}

func TestNonEmptyDropsBlankNames(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, nonEmpty(" a ", "", "  ", "b"))
	require.Empty(t, nonEmpty())
}

func TestPingRequiresClient(t *testing.T) {
	var c *Client
	require.Error(t, c.Ping(t.Context()))
	require.NoError(t, c.Close())
}
