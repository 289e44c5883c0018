package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestIsLockTimeout(t *testing.T) {
	require.True(t, IsLockTimeout(fmt.Errorf("lock cells: %w", &pgconn.PgError{Code: "55P03"})))
	require.True(t, IsLockTimeout(&pq.Error{Code: "55P03"}))
	require.True(t, IsLockTimeout(errors.New("ERROR: canceling statement due to lock timeout")))
	require.False(t, IsLockTimeout(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsLockTimeout(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}, ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: payments.booking_id"), ""))
	require.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "payments_booking_id_key"`), "payments_booking_id_key"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestSetLockTimeoutIgnoresSQLite(t *testing.T) {
	conn := newTestDB(t, nil)
	require.NoError(t, SetLockTimeout(conn, 0))
	require.NoError(t, SetLockTimeout(conn, 1500))
}
