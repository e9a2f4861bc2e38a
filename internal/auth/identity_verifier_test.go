package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSigningSecret = "secret"
	testUserEmail     = "alice@x.com"
)

func newTestVerifier(t *testing.T, clockNow time.Time, issuer string) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        issuer,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct verifier: %v", err)
	}
	return verifier
}

func signClaims(t *testing.T, method jwt.SigningMethod, secret interface{}, claims CredentialClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, clockNow, "")

	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSigningSecret), CredentialClaims{
		Email:  "Alice@X.com",
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	})

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected verification failure: %v", err)
	}
	if identity.Email != testUserEmail {
		t.Fatalf("unexpected email: %s", identity.Email)
	}
	if identity.UserID != "user-123" {
		t.Fatalf("unexpected user id: %s", identity.UserID)
	}
}

func TestVerifierAcceptsTokenWithoutExpiry(t *testing.T) {
	verifier := newTestVerifier(t, time.Now(), "")
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSigningSecret), CredentialClaims{Email: testUserEmail})

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected verification failure: %v", err)
	}
	if identity.Email != testUserEmail {
		t.Fatalf("unexpected email: %s", identity.Email)
	}
}

func TestVerifierRejectsInvalidTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		token  string
		issuer string
	}{
		{
			name:  "empty",
			token: "  ",
		},
		{
			name:  "malformed",
			token: "not-a-jwt",
		},
		{
			name: "expired",
			token: signClaims(t, jwt.SigningMethodHS256, []byte(testSigningSecret), CredentialClaims{
				Email: testUserEmail,
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(clockNow.Add(-time.Hour)),
				},
			}),
		},
		{
			name:  "wrong-secret",
			token: signClaims(t, jwt.SigningMethodHS256, []byte("other-secret"), CredentialClaims{Email: testUserEmail}),
		},
		{
			name:  "unsigned",
			token: signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, CredentialClaims{Email: testUserEmail}),
		},
		{
			name:  "missing-email",
			token: signClaims(t, jwt.SigningMethodHS256, []byte(testSigningSecret), CredentialClaims{UserID: "user-1"}),
		},
		{
			name:   "issuer-mismatch",
			issuer: "whiteboard-auth",
			token: signClaims(t, jwt.SigningMethodHS256, []byte(testSigningSecret), CredentialClaims{
				Email:            testUserEmail,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := newTestVerifier(t, clockNow, tt.issuer)
			_, err := verifier.Verify(context.Background(), tt.token)
			if err == nil {
				t.Fatalf("expected verification failure")
			}
			if !errors.Is(err, ErrInvalidCredential) {
				t.Fatalf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
}

func TestVerifierRoundTripsIssuedTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "whiteboard-auth",
		Clock:         func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	token, _, err := issuer.IssueToken(Identity{Email: testUserEmail})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	verifier := newTestVerifier(t, clockNow.Add(time.Minute), "whiteboard-auth")
	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected verification failure: %v", err)
	}
	if identity.Email != testUserEmail || identity.UserID != testUserEmail {
		t.Fatalf("unexpected identity %#v", identity)
	}
}

func TestTokenFromRequest(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/ws?token=query-token", http.NoBody)
	if token := TokenFromRequest(request); token != "query-token" {
		t.Fatalf("expected query token, got %q", token)
	}

	request.Header.Set("Authorization", "Bearer header-token")
	if token := TokenFromRequest(request); token != "header-token" {
		t.Fatalf("expected header token to win, got %q", token)
	}

	bare := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	bare.Header.Set("Authorization", "Basic abc")
	if token := TokenFromRequest(bare); token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
}
