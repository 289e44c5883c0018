package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/livo-backend/api/responses"
	"github.com/angelmondragon/livo-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier interface {
	Verify(raw string) (*auth.AccessTokenClaims, error)
}

// Auth requires a valid bearer token and stores the caller as the request
// Principal. A nil verifier rejects every request.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if verifier == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "authentication unavailable"))
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="livo"`)
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="livo", error="invalid_token"`)
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx = WithPrincipal(ctx, Principal{UserID: claims.UserID, Role: claims.Role})
			ctx = logg.WithFields(ctx, map[string]any{
				"user_id":    claims.UserID.String(),
				"actor_role": string(claims.Role),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
