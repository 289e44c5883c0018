package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

type principalKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != uuid.Nil
}

// UserIDFromContext returns the caller id as a string, or "" when the
// request is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}
