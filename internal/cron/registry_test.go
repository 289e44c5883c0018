package cron

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	sweep := &testJob{name: "booking-expiry"}
	reprice := &testJob{name: "repricing"}
	registry, err := NewRegistry(sweep, reprice)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Equal(t, []Job{sweep, reprice}, jobs)

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	registry, err := NewRegistry(&testJob{name: "retention"})
	require.NoError(t, err)

	require.Error(t, registry.Register(nil))
	require.Error(t, registry.Register(&testJob{name: "  "}))
	require.ErrorContains(t, registry.Register(&testJob{name: "retention"}), "already registered")
	require.Len(t, registry.Jobs(), 1)

	_, err = NewRegistry(&testJob{name: "a"}, &testJob{name: "a"})
	require.Error(t, err)
}
