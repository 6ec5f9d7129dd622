package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier checks bearer tokens and attaches their claims to the request
// context for VerifiedClaimsSource.
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	logger  *slog.Logger
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, logger *slog.Logger) *Verifier {
	return &Verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return secret, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		logger:  logger.With("component", "token_verifier"),
	}
}

// NewJWKSVerifier verifies asymmetric tokens against the key set at url.
// The key set is refreshed in the background until ctx is done.
func NewJWKSVerifier(ctx context.Context, url string, logger *slog.Logger) (*Verifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewKeyfuncVerifier(k, logger), nil
}

// NewKeyfuncVerifier wraps an existing keyfunc.
func NewKeyfuncVerifier(k keyfunc.Keyfunc, logger *slog.Logger) *Verifier {
	return &Verifier{
		keyfunc: k.Keyfunc,
		methods: []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"},
		logger:  logger.With("component", "token_verifier"),
	}
}

// Verify parses and validates token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, mc, v.keyfunc, jwt.WithValidMethods(v.methods))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc), nil
}

// Middleware verifies a bearer token when one is present. Requests without a
// bearer token pass through untouched; invalid tokens are handed to reject.
func (v *Verifier) Middleware(reject func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				v.logger.Debug("token verification failed",
					"error", err,
					"remote_addr", r.RemoteAddr,
				)
				reject(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// PrincipalMiddleware copies the principal identifier set by a trusted gateway
// in header into the request context.
func PrincipalMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := strings.TrimSpace(r.Header.Get(header)); p != "" {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}
