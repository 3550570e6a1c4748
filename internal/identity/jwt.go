package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type externalClaims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	jwt.RegisteredClaims
}

// JWTVerifier trusts HS256 credentials signed with a shared secret by an
// upstream identity provider.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(v.secret) == 0 {
		return Identity{}, ErrInvalidCredential
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := &externalClaims{}
	if _, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrMissingSubject
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return Identity{
		Subject:     claims.Subject,
		Username:    claims.PreferredUsername,
		DisplayName: SanitizeDisplayName(name),
		AvatarURL:   claims.Picture,
	}, nil
}
