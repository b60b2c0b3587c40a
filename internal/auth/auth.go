// Package auth verifies inbound bearer credentials and binds the resulting
// caller identity to the request context. Two credential forms are accepted:
// static tokens from configuration, and HS256-signed JWTs carrying the
// caller's email claim.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/helmdb/agentpg/internal/identity"
)

// Config holds the verifier settings. All-empty config disables auth.
type Config struct {
	// BearerTokens is a comma-separated list of token:client pairs.
	BearerTokens string
	// JWTSecret enables HS256 JWT verification when non-empty.
	JWTSecret string
	// Audience is the required JWT audience claim. Defaults to
	// "authenticated" when JWTSecret is set.
	Audience string
}

// Identity is the verified caller.
type Identity struct {
	// Client names the credential, e.g. the configured client label for a
	// static token or the JWT subject.
	Client string
	// Email is the caller's email when the credential carries one. Static
	// tokens have no email.
	Email string
}

// Verifier checks bearer credentials against the configured token set and
// JWT secret.
type Verifier struct {
	staticTokens map[string]string
	jwtSecret    []byte
	audience     string
}

// NewVerifier builds a Verifier from the config. Returns an error on a
// malformed BearerTokens list.
func NewVerifier(config Config) (*Verifier, error) {
	v := &Verifier{staticTokens: map[string]string{}}
	if config.BearerTokens != "" {
		for _, pair := range strings.Split(config.BearerTokens, ",") {
			token, client, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok || token == "" || client == "" {
				return nil, fmt.Errorf("auth: malformed bearer token entry %q, want token:client", pair)
			}
			v.staticTokens[token] = client
		}
	}
	if config.JWTSecret != "" {
		v.jwtSecret = []byte(config.JWTSecret)
		v.audience = config.Audience
		if v.audience == "" {
			v.audience = "authenticated"
		}
	}
	return v, nil
}

// Enabled reports whether any credential form is configured.
func (v *Verifier) Enabled() bool {
	return len(v.staticTokens) > 0 || len(v.jwtSecret) > 0
}

// Verify checks a bearer token and returns the caller identity. Static
// tokens are checked first, then JWT verification if configured.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if client, ok := v.staticTokens[token]; ok {
		return &Identity{Client: client}, nil
	}
	if len(v.jwtSecret) > 0 {
		return v.verifyJWT(token)
	}
	return nil, fmt.Errorf("auth: unknown token")
}

func (v *Verifier) verifyJWT(token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.jwtSecret, nil
	}, jwt.WithAudience(v.audience))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %v", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	id := &Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		id.Client = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}

// Middleware wraps an HTTP handler with bearer verification. On success the
// caller's email (when present) is bound to the request context. When the
// verifier is disabled requests pass through untouched.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			unauthorized(w, "invalid bearer token")
			return
		}
		if id.Email != "" {
			r = r.WithContext(identity.WithEmail(r.Context(), id.Email))
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
