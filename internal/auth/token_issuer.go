package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 24 * time.Hour
)

var (
	errMissingEmailClaim = errors.New("auth: email claim must be provided")
)

// TokenIssuerConfig configures the credential token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer mints credential tokens accepted by Verifier.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        strings.TrimSpace(cfg.Issuer),
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// IssueToken produces a signed token for the identity and returns its expiry.
func (i *TokenIssuer) IssueToken(identity Identity) (string, time.Time, error) {
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return "", time.Time{}, errMissingEmailClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	subject := strings.TrimSpace(identity.UserID)
	if subject == "" {
		subject = email
	}

	claims := CredentialClaims{
		Email:  email,
		UserID: strings.TrimSpace(identity.UserID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
