package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, err := m.GenerateToken("session-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SessionID != "session-1" || claims.Subject != "session-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if err := m.Authorize(token, "session-1"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := m.Authorize(token, "session-2"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for another session, got %v", err)
	}
}

func TestParseTokenRejects(t *testing.T) {
	m, _ := NewTokenManager("secret", time.Hour)
	other, _ := NewTokenManager("other", time.Hour)
	foreign, _ := other.GenerateToken("session-1")

	expiring, _ := NewTokenManager("secret", time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiring.GenerateToken("session-1")

	tests := map[string]string{
		"garbage":      "not-a-token",
		"empty":        "",
		"wrong secret": foreign,
		"expired":      expired,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := m.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
