package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var errInvalidClaims = errors.New("invalid token claims")

// bearerClaims verifies the bearer token of r against secret. A request
// without a token is anonymous and yields nil claims.
func bearerClaims(r *http.Request, secret []byte) (jwt.MapClaims, error) {
	header := r.Header.Get("Authorization")
	if len(secret) == 0 || !strings.HasPrefix(header, "Bearer ") {
		return nil, nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, nil
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, errInvalidClaims
	}
	return claims, nil
}
