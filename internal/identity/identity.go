// Package identity resolves the owner of a request from its credential
// material. Sources are tried in a fixed order and the first one that yields
// a non-empty identifier wins.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/maneesh/filebroker/internal/apperr"
)

// Claims are the fields of a token that an upstream layer has verified.
type Claims struct {
	Subject  string
	Username string
}

// Credentials is everything a request carries that may identify its caller.
type Credentials struct {
	Claims        *Claims
	PrincipalID   string
	Authorization string
}

// Identity is a resolved caller.
type Identity struct {
	OwnerID string
	Source  string
}

// ClaimsSource is one extraction strategy.
type ClaimsSource interface {
	Name() string
	TryExtract(creds Credentials) (Identity, bool)
}

// Resolver evaluates its sources in order.
type Resolver struct {
	sources []ClaimsSource
}

// NewResolver creates a resolver over the given sources.
func NewResolver(sources ...ClaimsSource) *Resolver {
	return &Resolver{sources: sources}
}

// DefaultSources returns the standard chain. The bearer payload source is
// appended only when unverified decoding is allowed.
func DefaultSources(allowUnverifiedBearer bool) []ClaimsSource {
	sources := []ClaimsSource{VerifiedClaimsSource{}, PrincipalSource{}}
	if allowUnverifiedBearer {
		sources = append(sources, BearerPayloadSource{})
	}
	return sources
}

// Resolve returns the first identity produced by a source, or
// apperr.ErrUnauthenticated when none matches.
func (r *Resolver) Resolve(creds Credentials) (Identity, error) {
	for _, src := range r.sources {
		if id, ok := src.TryExtract(creds); ok && strings.TrimSpace(id.OwnerID) != "" {
			if id.Source == "" {
				id.Source = src.Name()
			}
			return id, nil
		}
	}
	return Identity{}, apperr.ErrUnauthenticated
}

// ResolveRequest resolves the caller of r.
func (r *Resolver) ResolveRequest(req *http.Request) (Identity, error) {
	return r.Resolve(CredentialsFromRequest(req))
}

type contextKey string

const (
	claimsKey    contextKey = "identity_claims"
	principalKey contextKey = "identity_principal"
)

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified claims attached to ctx, if any.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// WithPrincipal attaches a raw principal identifier to ctx.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey, principalID)
}

// PrincipalFromContext returns the principal identifier attached to ctx.
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalKey).(string)
	return principal
}

// CredentialsFromRequest collects the credential material of r.
func CredentialsFromRequest(r *http.Request) Credentials {
	return Credentials{
		Claims:        ClaimsFromContext(r.Context()),
		PrincipalID:   PrincipalFromContext(r.Context()),
		Authorization: r.Header.Get("Authorization"),
	}
}
