// Package auth resolves who is looking at the page from the bearer token the
// backend issued. The same token is forwarded to the backend on every call.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Viewer is the identity a session renders for.
type Viewer struct {
	ID    string
	Name  string
	Token string
}

type Validator struct {
	secret []byte
	issuer string
}

func NewValidator(secret, issuer string) *Validator {
	return &Validator{secret: []byte(secret), issuer: issuer}
}

func (v *Validator) ValidateToken(tokenString string) (Viewer, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Viewer{}, errors.Wrap(ErrInvalidToken, errString(err))
	}
	if claims.ID == "" {
		return Viewer{}, errors.Wrap(ErrInvalidToken, "token has no user id")
	}
	return Viewer{ID: claims.ID, Name: claims.Name, Token: tokenString}, nil
}

// Issue signs a token for id. The load driver and local development use it;
// in production the backend hands tokens out.
func (v *Validator) Issue(id, name string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:   id,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	ss, err := token.SignedString(v.secret)
	return ss, errors.Wrap(err, "sign token")
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}
