package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
)

// IntRange bounds a numeric query parameter. Default is used when the
// parameter is absent.
type IntRange struct {
	Default int
	Min     int
	Max     int
}

// QueryInt reads key from the query string and checks it against bounds.
func QueryInt(r *http.Request, key string, bounds IntRange) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return bounds.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be an integer").
			WithDetails(map[string]any{"field": key})
	}
	if value < bounds.Min || value > bounds.Max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": bounds.Min, "max": bounds.Max})
	}
	return value, nil
}

// QueryEnum parses an optional enum-valued query parameter. An absent or
// blank parameter yields the zero value without calling parse.
func QueryEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (T, error) {
	var zero T
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return zero, nil
	}
	value, err := parse(raw)
	if err != nil {
		return zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).
			WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// RequiredHeader returns the trimmed header value, failing when it is blank
// or longer than maxLen bytes.
func RequiredHeader(r *http.Request, name string, maxLen int) (string, error) {
	value := strings.TrimSpace(r.Header.Get(name))
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" header required")
	}
	if maxLen > 0 && len(value) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" header too long").
			WithDetails(map[string]any{"max": maxLen})
	}
	return value, nil
}
