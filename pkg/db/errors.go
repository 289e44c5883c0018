package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	sqlStateUniqueViolation  = "23505"
	sqlStateLockNotAvailable = "55P03"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	if sqlState(err) == sqlStateUniqueViolation {
		return true
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsLockTimeout reports whether err came from a lock wait exceeding lock_timeout.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == sqlStateLockNotAvailable {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock timeout") || strings.Contains(msg, "database is locked")
}

func sqlState(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// SetLockTimeout bounds row lock waits for the remainder of tx. Dialects
// without lock_timeout (sqlite in tests) are left untouched.
func SetLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if tx == nil || timeout <= 0 || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error
}
