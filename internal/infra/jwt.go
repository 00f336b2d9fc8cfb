// README: HS256 JWT verifier for tokens issued by the marketplace auth service.
package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload the auth service signs.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

func (v *jwtVerifier) VerifyIDToken(_ context.Context, raw string) (*Token, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return nil, errors.New("token has no user id")
	}
	return &Token{UID: uid, Claims: map[string]interface{}{RoleClaim: claims.Role}}, nil
}

// SignJWT issues a token for userID and role. Used by tests and local tooling.
func SignJWT(secret, userID, role string, rc jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: userID, Role: role, RegisteredClaims: rc}).
		SignedString([]byte(secret))
}
