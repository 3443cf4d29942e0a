package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const viewerKey contextKey = "viewer"

// CookieName is where the page keeps the token for follow-up fragment requests.
const CookieName = "token"

type TokenValidator interface {
	ValidateToken(tokenString string) (Viewer, error)
}

type Middleware struct {
	validator TokenValidator
}

func NewMiddleware(v TokenValidator) *Middleware {
	return &Middleware{validator: v}
}

// Handle rejects requests without a valid token and puts the viewer in the context.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}
		viewer, err := m.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
	})
}

// TokenFromRequest checks the Authorization header, then the cookie, then the
// token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

func ViewerFrom(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(Viewer)
	return v, ok
}
