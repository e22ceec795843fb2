package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/alejzeis/rps-arena/common"
)

var errMissingToken = errors.New("missing token")

// Claims are carried by the tokens the auth service hands out.
// Subject is the user's UUID, Name their display name.
type Claims struct {
	Name string `json:"name"`
	jwt.StandardClaims
}

// IssueToken signs a token for user. Production tokens come from the auth service;
// this exists for development and tests.
func IssueToken(secret []byte, user uuid.UUID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		Name: name,
		StandardClaims: jwt.StandardClaims{
			Issuer:    common.SoftwareName,
			Subject:   user.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	})
	return t.SignedString(secret)
}

func verifyToken(secret []byte, tokenStr string) (*Claims, error) {
	decodedToken, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Don't forget to validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := decodedToken.Claims.(*Claims)
	if !ok || !decodedToken.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ExpiresAt == 0 {
		return nil, errors.New("token has no expiry")
	}
	if strings.TrimSpace(claims.Name) == "" {
		return nil, errors.New("token has no display name")
	}
	return claims, nil
}

// tokenFromRequest reads a bearer token from the Authorization header, falling back to ?token=
// since browsers cannot set headers on websocket handshakes
func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", errMissingToken
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}
