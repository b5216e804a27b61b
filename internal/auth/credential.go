// Package auth manages the MYOB OAuth2 credential lifecycle: the browser
// authorization flow, token exchange and refresh, and persistence across
// restarts. A single credential covers the whole server; refresh is
// serialized so concurrent API calls never race the token endpoint.
package auth

import (
	"time"
)

// RefreshBuffer is how long before expiry a credential is already treated
// as expired. Refreshing inside this window keeps a token from being
// presented with only seconds of life left in it.
const RefreshBuffer = 60 * time.Second

// defaultExpiresIn applies when the token endpoint omits expires_in.
// MYOB access tokens live 20 minutes.
const defaultExpiresIn = 1200

// TokenUser identifies the my.MYOB account that granted access.
type TokenUser struct {
	UID      string `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
}

// Credential is the stored OAuth2 state for the MYOB connection. It is the
// unit the TokenStore persists and the Manager refreshes.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Expiry       time.Time  `json:"expiry"`
	Scope        string     `json:"scope,omitempty"`
	BusinessID   string     `json:"business_id,omitempty"`
	User         *TokenUser `json:"user,omitempty"`
}

// ExpiresWithin reports whether the access token expires inside the window.
// Credentials with zero expiry never expire.
func (c *Credential) ExpiresWithin(window time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry.Add(-window))
}

// IsExpired reports whether the access token is unusable, counting the
// refresh buffer as already expired.
func (c *Credential) IsExpired() bool {
	return c.ExpiresWithin(RefreshBuffer)
}

// AuthorizationHeader formats the credential per RFC 6750, defaulting the
// token type to Bearer.
func (c *Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// TokenResponse maps the MYOB token endpoint response: the standard
// RFC 6749 fields plus MYOB's user block.
type TokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	User         *TokenUser `json:"user,omitempty"`
}

// Credential converts the wire response into a stored credential, anchoring
// expiry at now and applying the MYOB default lifetime when expires_in is
// missing.
func (r *TokenResponse) Credential(now time.Time) *Credential {
	expiresIn := r.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	return &Credential{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       now.Add(time.Duration(expiresIn) * time.Second),
		Scope:        r.Scope,
		User:         r.User,
	}
}
