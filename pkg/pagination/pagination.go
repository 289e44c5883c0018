// Package pagination implements keyset paging over (timestamp, id) ordered
// lists, newest first, with opaque URL-safe cursors.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is what a list endpoint hands to its service.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position after which the next page starts.
type Cursor struct {
	At time.Time `json:"t"`
	ID uuid.UUID `json:"id"`
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func EncodeCursor(c Cursor) string {
	c.At = c.At.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes a cursor. A blank value means the first page and
// yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if c.At.IsZero() || c.ID == uuid.Nil {
		return nil, errors.New("cursor is incomplete")
	}
	return &c, nil
}

// After narrows query to rows strictly after cursor in (column DESC, id DESC)
// order and applies that order. limit+1 rows are fetched so Trim can tell
// whether another page exists.
func After(query *gorm.DB, column string, cursor *Cursor, limit int) *gorm.DB {
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(%[1]s < ?) OR (%[1]s = ? AND id < ?)", column),
			cursor.At, cursor.At, cursor.ID,
		)
	}
	return query.Order(column + " DESC").Order("id DESC").Limit(limit + 1)
}

// Trim cuts rows fetched through After down to limit and returns the cursor
// for the following page, or "" on the last page.
func Trim[T any](rows []T, limit int, position func(T) Cursor) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(position(rows[limit-1]))
}
