package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_ExpiresWithin(t *testing.T) {
	tests := []struct {
		name     string
		expiry   time.Time
		window   time.Duration
		expected bool
	}{
		{
			name:     "fresh token outside window",
			expiry:   time.Now().Add(10 * time.Minute),
			window:   time.Minute,
			expected: false,
		},
		{
			name:     "token inside window",
			expiry:   time.Now().Add(30 * time.Second),
			window:   time.Minute,
			expected: true,
		},
		{
			name:     "already expired",
			expiry:   time.Now().Add(-time.Minute),
			window:   time.Minute,
			expected: true,
		},
		{
			name:     "zero expiry never expires",
			expiry:   time.Time{},
			window:   time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := &Credential{Expiry: tt.expiry}
			assert.Equal(t, tt.expected, cred.ExpiresWithin(tt.window))
		})
	}
}

func TestCredential_IsExpired(t *testing.T) {
	// Inside the refresh buffer counts as expired even though the token
	// is technically still alive
	cred := &Credential{Expiry: time.Now().Add(RefreshBuffer / 2)}
	assert.True(t, cred.IsExpired())

	cred = &Credential{Expiry: time.Now().Add(RefreshBuffer * 2)}
	assert.False(t, cred.IsExpired())
}

func TestCredential_AuthorizationHeader(t *testing.T) {
	cred := &Credential{AccessToken: "abc123", TokenType: "Bearer"}
	assert.Equal(t, "Bearer abc123", cred.AuthorizationHeader())

	// Missing token type defaults to Bearer
	cred = &Credential{AccessToken: "abc123"}
	assert.Equal(t, "Bearer abc123", cred.AuthorizationHeader())
}

func TestTokenResponse_Credential(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	resp := &TokenResponse{
		AccessToken:  "at-1",
		TokenType:    "Bearer",
		ExpiresIn:    600,
		RefreshToken: "rt-1",
		Scope:        "sme-sales",
		User:         &TokenUser{UID: "u-1", Username: "user@example.com"},
	}

	cred := resp.Credential(now)
	assert.Equal(t, "at-1", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Equal(t, now.Add(600*time.Second), cred.Expiry)
	assert.Equal(t, "sme-sales", cred.Scope)
	assert.Equal(t, "user@example.com", cred.User.Username)
}

func TestTokenResponse_Credential_DefaultExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// MYOB sometimes omits expires_in; the 20 minute default applies
	resp := &TokenResponse{AccessToken: "at-1"}
	cred := resp.Credential(now)

	assert.Equal(t, now.Add(1200*time.Second), cred.Expiry)
}
