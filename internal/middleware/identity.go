package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/campusquest/backend/internal/models"
)

type contextKey string

const ctxHandleKey contextKey = "handle"

// TokenValidator resolves a bearer token to the handle it was issued to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// Identity authenticates requests that carry a Bearer token and stores the
// token's handle in the request context. Requests without an Authorization
// header pass through unauthenticated; a bad token is rejected with 401.
func Identity(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw := extractBearer(r)
			if raw == "" {
				WriteError(w, nil, models.E(models.ErrUnauthorized, "malformed Authorization header"))
				return
			}
			handle, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithHandle(r.Context(), handle)))
		})
	}
}

// HandleFromCtx returns the authenticated handle, or "" when the request
// carried no token.
func HandleFromCtx(ctx context.Context) string {
	h, _ := ctx.Value(ctxHandleKey).(string)
	return h
}

// WithHandle returns a context carrying the given handle.
func WithHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, ctxHandleKey, handle)
}

// ResolveIdentity picks the acting handle for a request field such as "hero"
// or "creator". A signed-in caller may omit the field but may not claim
// someone else; an anonymous caller must supply it.
func ResolveIdentity(ctx context.Context, field, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	signedIn := HandleFromCtx(ctx)
	switch {
	case signedIn != "" && claimed == "":
		return signedIn, nil
	case signedIn != "" && claimed != signedIn:
		return "", models.E(models.ErrForbidden, "%s %q does not match the signed-in user", field, claimed)
	case claimed == "":
		return "", models.E(models.ErrValidation, "%s is required", field)
	}
	return claimed, nil
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
