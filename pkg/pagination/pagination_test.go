package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{At: time.Date(2026, 11, 2, 0, 0, 0, 0, time.FixedZone("EST", -5*3600)), ID: uuid.New()}
	encoded := EncodeCursor(in)
	require.NotContains(t, encoded, "/")
	require.NotContains(t, encoded, "=")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.True(t, out.At.Equal(in.At))
	require.Equal(t, time.UTC, out.At.Location())
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	out, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, out)

	for _, value := range []string{
		"not base64!",
		base64.RawURLEncoding.EncodeToString([]byte("[1,2]")),
		EncodeCursor(Cursor{}),
	} {
		_, err := ParseCursor(value)
		require.Error(t, err, value)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(1000))
	require.Equal(t, 10, NormalizeLimit(10))
}

type stay struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	StartDate time.Time
}

func TestAfterAndTrimWalkEveryRowOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stay{}))

	day := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	// Two rows share a start date so the id tiebreak is exercised.
	for _, offset := range []int{0, 1, 1, 2, 3} {
		require.NoError(t, db.Create(&stay{ID: uuid.New(), StartDate: day.AddDate(0, 0, offset)}).Error)
	}

	position := func(s stay) Cursor { return Cursor{At: s.StartDate, ID: s.ID} }
	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	pages := 0
	for {
		var rows []stay
		require.NoError(t, After(db.Model(&stay{}), "start_date", cursor, 2).Find(&rows).Error)
		page, next := Trim(rows, 2, position)
		pages++
		for _, row := range page {
			require.False(t, seen[row.ID], "row returned twice")
			seen[row.ID] = true
		}
		if next == "" {
			break
		}
		cursor, err = ParseCursor(next)
		require.NoError(t, err)
	}
	require.Len(t, seen, 5)
	require.Equal(t, 3, pages)
}
