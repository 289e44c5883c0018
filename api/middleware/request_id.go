package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

const maxRequestIDLen = 128

// RequestID propagates X-Request-ID from the caller or mints one. The id is
// echoed on the response before handlers run so error envelopes can carry it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(responses.RequestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(responses.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validRequestID rejects empty, oversized or non-printable ids so callers
// cannot inject junk into log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
