package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// hmacAuthenticator validates HS256 tokens against a shared secret. It
// exists for development and tests only; production deployments should use
// NewFromDiscovery or NewStatic.
type hmacAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHMAC returns a development Authenticator over a shared HS256 secret.
func NewHMAC(secret []byte, issuer, audience string) (Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	return &hmacAuthenticator{secret: secret, issuer: issuer, audience: audience}, nil
}

func (a *hmacAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithLeeway(30*time.Second),
	)
	parsed, err := parser.Parse(tok, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return hmacUserInfo{sub: sub, claims: claims}, nil
}

type hmacUserInfo struct {
	sub    string
	claims map[string]any
}

func (u hmacUserInfo) UserID() string { return u.sub }
func (u hmacUserInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

var _ Authenticator = (*hmacAuthenticator)(nil)
