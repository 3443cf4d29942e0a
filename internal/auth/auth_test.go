package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("secret", "test")
	token, err := v.Issue("u1", "Ann", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := v.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if viewer.ID != "u1" || viewer.Name != "Ann" || viewer.Token != token {
		t.Errorf("viewer = %+v", viewer)
	}
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator("secret", "test")
	other, _ := NewValidator("other", "test").Issue("u1", "Ann", time.Hour)
	expired, _ := v.Issue("u1", "Ann", -time.Minute)
	noID, _ := v.Issue("", "Ann", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": other,
		"expired":      expired,
		"missing id":   noID,
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.ValidateToken(token); errors.Cause(err) != ErrInvalidToken {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewValidator("secret", "test")
	token, _ := v.Issue("u1", "Ann", time.Hour)

	var seen Viewer
	h := NewMiddleware(v).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ViewerFrom(r.Context())
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Viewer{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && seen.ID != "u1" {
				t.Errorf("viewer = %+v", seen)
			}
		})
	}
}
