// Package jwtauth validates JWT bearer tokens for the chat host. It backs
// the public auth package with two constructions: OIDC discovery (issuer →
// jwks_uri, auto-refreshing keys) and a statically configured JWKS URI.
// Both share a single verification path.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls access token validation: issuer, accepted audiences,
// scope policy, allowed algorithms, and clock-skew leeway.
type Config struct {
	Issuer string
	// ExpectedAudiences holds the accepted "aud" values. The first entry
	// should be the production audience; extras exist for local setups
	// where the served base URL differs.
	ExpectedAudiences []string
	RequiredScopes    []string
	// ScopeModeAny accepts a token carrying any one of RequiredScopes;
	// the default requires all of them.
	ScopeModeAny bool
	AllowedAlgs  []string
	Leeway       time.Duration
}

// DefaultConfig returns a Config with safe algorithm and leeway defaults.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// UserInfo carries the validated principal: the subject plus access to the
// raw claims.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates access tokens. Implementations must perform
// signature, issuer, audience, and time validation.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// ErrUnauthorized indicates the token failed validation and the request is
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrInsufficientScope indicates a valid token that does not satisfy the
// required scopes; callers should map it to HTTP 403.
var ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")

// verifier is the shared verification core. Discovery and static
// constructors differ only in how they arrive at the issuer and keyfunc,
// and in whether the RFC 9068 "at+jwt" typ header is demanded.
type verifier struct {
	iss            string
	audiences      []string
	requiredScopes []string
	scopeModeAny   bool
	allowedAlgs    []string
	leeway         time.Duration
	requireATTyp   bool
	keyfunc        jwt.Keyfunc
}

// NewFromDiscovery performs OIDC discovery to learn the issuer's jwks_uri
// and constructs an Authenticator validating RFC 9068 access tokens with
// auto-refreshing JWKS keys.
func NewFromDiscovery(ctx context.Context, cfg *Config) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &verifier{
		iss:            meta.Issuer,
		audiences:      cfg.ExpectedAudiences,
		requiredScopes: cfg.RequiredScopes,
		scopeModeAny:   cfg.ScopeModeAny,
		allowedAlgs:    cfg.AllowedAlgs,
		leeway:         cfg.Leeway,
		requireATTyp:   true,
		keyfunc:        guardedKeyfunc(cfg.AllowedAlgs, kf.Keyfunc),
	}, nil
}

// guardedKeyfunc rejects disallowed algorithms before key lookup.
func guardedKeyfunc(allowedAlgs []string, inner jwt.Keyfunc) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		for _, a := range allowedAlgs {
			if alg == a {
				return inner(t)
			}
		}
		return nil, fmt.Errorf("disallowed alg: %s", alg)
	}
}

func (v *verifier) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.iss),
		jwt.WithLeeway(v.leeway),
	}
	// With one audience the parser enforces it; multiple audiences use
	// intersection logic after parsing.
	if len(v.audiences) == 1 {
		opts = append(opts, jwt.WithAudience(v.audiences[0]))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(tok, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	if v.requireATTyp {
		if typ, _ := parsed.Header["typ"].(string); typ != "at+jwt" && typ != "application/at+jwt" {
			return nil, fmt.Errorf("%w: invalid typ; want at+jwt", ErrUnauthorized)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	if iss, _ := claims["iss"].(string); iss == "" || iss != v.iss {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrUnauthorized)
	}
	if len(v.audiences) > 1 && !audIntersects(claims["aud"], v.audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	if err := v.checkScopes(claims); err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &userInfo{sub: sub, claims: claims}, nil
}

func (v *verifier) checkScopes(claims jwt.MapClaims) error {
	if len(v.requiredScopes) == 0 {
		return nil
	}
	scopeStr, _ := claims["scope"].(string)
	have := map[string]bool{}
	for _, s := range strings.Fields(scopeStr) {
		have[s] = true
	}
	if v.scopeModeAny {
		for _, want := range v.requiredScopes {
			if have[want] {
				return nil
			}
		}
		return ErrInsufficientScope
	}
	for _, want := range v.requiredScopes {
		if !have[want] {
			return ErrInsufficientScope
		}
	}
	return nil
}

// audIntersects reports whether the token's "aud" claim (string or array)
// shares at least one value with wants.
func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}
