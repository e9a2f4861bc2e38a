package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix    = "Bearer "
	tokenQueryParam = "token"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	// ErrInvalidCredential covers every rejected token: missing, malformed, expired or unsigned.
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// CredentialClaims is the JWT payload carried by whiteboard credential tokens.
type CredentialClaims struct {
	Email  string `json:"email"`
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the caller identity extracted from a verified token.
type Identity struct {
	Email  string
	UserID string
}

// VerifierConfig describes how to verify credential tokens.
type VerifierConfig struct {
	SigningSecret []byte
	// Issuer is optional; when set tokens must carry a matching iss claim.
	Issuer string
	Clock  func() time.Time
}

// Verifier validates HS256 credential tokens against a process-wide secret.
type Verifier struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewVerifier constructs a verifier with the provided configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        strings.TrimSpace(cfg.Issuer),
		clock:         clock,
	}, nil
}

// Verify decodes the token, checks its signature and returns the embedded identity.
func (v *Verifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: token required", ErrInvalidCredential)
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &CredentialClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: token expired", ErrInvalidCredential)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if parsed == nil || !parsed.Valid {
		return Identity{}, ErrInvalidCredential
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return Identity{}, fmt.Errorf("%w: email claim required", ErrInvalidCredential)
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	return Identity{Email: email, UserID: userID}, nil
}

// VerifyRequest extracts the request credential and verifies it.
func (v *Verifier) VerifyRequest(r *http.Request) (Identity, error) {
	return v.Verify(r.Context(), TokenFromRequest(r))
}

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the token query parameter used by browser websocket clients.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
}
