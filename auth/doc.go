// Package auth provides pluggable bearer-token authentication for chat
// hosts that delegate authorization to an external OAuth 2.0 / OIDC
// authorization server.
//
// The public surface stays small: an Authenticator validates an incoming
// bearer token string and returns a UserInfo (or an error). The HTTP layer
// extracts the token from the request and maps the sentinel errors onto
// status codes: ErrUnauthorized to 401, ErrInsufficientScope to 403.
//
// NewFromDiscovery validates RFC 9068 access tokens using OpenID Connect
// discovery to obtain the issuer's JWKS; NewStatic takes the JWKS URI
// directly. NewHMAC is a development-only authenticator over a shared
// secret, for running the stack without an authorization server.
package auth
