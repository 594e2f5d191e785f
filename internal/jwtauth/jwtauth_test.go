package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":   m.issuer,
			"jwks_uri": m.issuer + m.jwksPath,
		})
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	t.Cleanup(m.srv.Close)
	return m
}

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, headerTyp string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	if headerTyp != "" {
		tok.Header["typ"] = headerTyp
	}
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseConfig(issuer, aud string) *Config {
	cfg := DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{aud}
	cfg.Leeway = 0
	return cfg
}

func TestDiscoveryHappyPath(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	aud := "https://chat.example.com/api"
	cfg := baseConfig(oidcSrv.issuer, aud)
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "at+jwt", jwt.MapClaims{
		"iss":   oidcSrv.issuer,
		"sub":   "user-123",
		"aud":   aud,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": "chat:read chat:write",
	})

	ui, err := a.CheckAuthentication(ctx, tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-123" {
		t.Fatalf("want sub user-123, got %s", ui.UserID())
	}
	var out struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&out); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if out.Scope != "chat:read chat:write" {
		t.Fatalf("scope roundtrip mismatch: %q", out.Scope)
	}
}

func TestDiscoveryMissingJWKS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"issuer": "http://" + r.Host})
	}))
	defer srv.Close()

	cfg := baseConfig(srv.URL, "aud")
	if _, err := NewFromDiscovery(context.Background(), cfg); err == nil {
		t.Fatal("expected error for discovery without jwks_uri")
	}
}

func TestAudienceArray(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	aud := "https://chat.example.com/api"
	cfg := baseConfig(oidcSrv.issuer, aud)
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "at+jwt", jwt.MapClaims{
		"iss": oidcSrv.issuer,
		"sub": "user-123",
		"aud": []string{"https://other", aud},
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	if _, err := a.CheckAuthentication(ctx, tok); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestAdditionalAudiences(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	primary := "https://chat.example.com/api"
	extra := "http://localhost:8080/api"
	cfg := baseConfig(oidcSrv.issuer, primary)
	cfg.ExpectedAudiences = []string{primary, extra}
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": oidcSrv.issuer,
		"sub": "user-123",
		"aud": extra,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	if _, err := a.CheckAuthentication(ctx, signToken(t, pk, kid, "at+jwt", claims)); err != nil {
		t.Fatalf("extra audience rejected: %v", err)
	}

	claims["aud"] = "https://unknown"
	if _, err := a.CheckAuthentication(ctx, signToken(t, pk, kid, "at+jwt", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown audience, got %v", err)
	}
}

func TestInsufficientScope(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	aud := "https://chat.example.com/api"
	cfg := baseConfig(oidcSrv.issuer, aud)
	cfg.RequiredScopes = []string{"chat:write", "chat:admin"}
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "at+jwt", jwt.MapClaims{
		"iss":   oidcSrv.issuer,
		"sub":   "user-123",
		"aud":   aud,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": "chat:write",
	})
	if _, err := a.CheckAuthentication(ctx, tok); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
}

func TestInvalidTyp(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	aud := "https://chat.example.com/api"
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, baseConfig(oidcSrv.issuer, aud))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "JWT", jwt.MapClaims{
		"iss": oidcSrv.issuer,
		"sub": "user-123",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	if _, err := a.CheckAuthentication(ctx, tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestIssuerMismatch(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidcSrv := newMockOIDC(t, jwks)

	aud := "https://chat.example.com/api"
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, baseConfig(oidcSrv.issuer, aud))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "at+jwt", jwt.MapClaims{
		"iss": "https://evil.example.com",
		"sub": "user-123",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	if _, err := a.CheckAuthentication(ctx, tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	defer srv.Close()

	issuer := "https://issuer.example.com"
	aud := "https://chat.example.com/api"
	cfg := DefaultStaticConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{aud}
	cfg.Leeway = 0
	ctx := context.Background()
	a, err := NewStatic(ctx, cfg, srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, "at+jwt", jwt.MapClaims{
		"iss": issuer,
		"sub": "user-456",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	ui, err := a.CheckAuthentication(ctx, tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-456" {
		t.Fatalf("sub = %s", ui.UserID())
	}

	if _, err := a.CheckAuthentication(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: want ErrUnauthorized, got %v", err)
	}
}
