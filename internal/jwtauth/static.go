package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
)

// StaticConfig controls validation when the JWKS URI is supplied directly
// instead of learned through discovery.
type StaticConfig struct {
	Issuer            string
	ExpectedAudiences []string
	AllowedAlgs       []string
	Leeway            time.Duration
}

// DefaultStaticConfig returns a StaticConfig with safe algorithm and leeway
// defaults.
func DefaultStaticConfig() *StaticConfig {
	return &StaticConfig{AllowedAlgs: []string{"RS256"}, Leeway: 60 * time.Second}
}

// NewStatic constructs an authenticator validating JWT access tokens
// against a fixed issuer, audience set, and JWKS URI. Keys still
// auto-refresh; only discovery is skipped. Unlike the discovery path, the
// "at+jwt" typ header is not demanded, since statically configured issuers
// often predate RFC 9068.
func NewStatic(ctx context.Context, cfg *StaticConfig, jwksURI string) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(cfg.ExpectedAudiences) == 0 {
		return nil, errors.New("at least one expected audience required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &verifier{
		iss:         cfg.Issuer,
		audiences:   cfg.ExpectedAudiences,
		allowedAlgs: cfg.AllowedAlgs,
		leeway:      cfg.Leeway,
		keyfunc:     guardedKeyfunc(cfg.AllowedAlgs, kf.Keyfunc),
	}, nil
}
