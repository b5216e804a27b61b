package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fixxdigital/myob-mcp-server/internal/circuitbreaker"
	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

// MYOB OAuth2 endpoints. The token endpoint doubles for the authorization
// code exchange and refreshes.
const (
	DefaultAuthorizeURL = "https://secure.myob.com/oauth2/account/authorize"
	DefaultTokenURL     = "https://secure.myob.com/oauth2/v1/authorize"
)

// PendingLifetime is how long an issued authorization state stays valid.
// A callback arriving later than this is treated as stale and rejected.
const PendingLifetime = 10 * time.Minute

// Options configures a Manager. Store, HTTPClient, and the endpoint URLs
// are optional; zero values get sensible defaults.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Store        TokenStore
	HTTPClient   *http.Client
	AuthorizeURL string
	TokenURL     string
}

// Manager owns the MYOB credential lifecycle. It hands out valid access
// tokens, refreshing behind a single lock so N concurrent callers hitting
// an expired token produce exactly one token-endpoint request, and persists
// every new credential through the TokenStore.
type Manager struct {
	// mu protects cred; refresh happens under the write lock
	mu   sync.RWMutex
	cred *Credential

	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	authorizeURL string
	tokenURL     string

	httpClient *http.Client
	store      TokenStore
	// breaker protects against token endpoint outages
	breaker *circuitbreaker.GoBreakerAdapter

	// stateMu protects the pending authorization; each state is
	// consumable once and expires after PendingLifetime
	stateMu       sync.Mutex
	pendingState  string
	pendingIssued time.Time

	now func() time.Time
}

// NewManager creates a Manager and loads any previously saved credential
// from the store. A credential that fails to load leaves the manager
// unauthenticated rather than failing startup.
func NewManager(opts Options) (*Manager, error) {
	if opts.ClientID == "" {
		return nil, errors.ValidationError("client id is required")
	}
	if opts.ClientSecret == "" {
		return nil, errors.ValidationError("client secret is required")
	}
	if opts.RedirectURI == "" {
		return nil, errors.ValidationError("redirect URI is required")
	}

	store := opts.Store
	if store == nil {
		store = NewMemoryTokenStore()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	authorizeURL := opts.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = DefaultAuthorizeURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	m := &Manager{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURI:  opts.RedirectURI,
		scopes:       opts.Scopes,
		authorizeURL: authorizeURL,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
		store:        store,
		breaker:      circuitbreaker.NewGoBreaker("myob-oauth", circuitbreaker.OAuthConfig, logging.GetGlobalLogger()),
		now:          time.Now,
	}

	cred, err := store.Load(context.Background())
	if err != nil {
		logging.Warn("Failed to load saved credential, starting unauthenticated",
			logging.Field{Key: "error", Value: err.Error()})
	} else if cred != nil && cred.AccessToken != "" {
		m.cred = cred
		logging.Info("Loaded saved MYOB credential",
			logging.Field{Key: "expires_at", Value: cred.Expiry},
			logging.Field{Key: "expired", Value: cred.IsExpired()})
	}

	return m, nil
}

// BeginAuthorization starts the browser flow. It generates a fresh state
// value, remembers it for the matching CompleteAuthorization call, and
// returns the URL the user must open. prompt=consent forces MYOB to issue
// a refresh token even when access was granted before.
//
// Only one authorization may be in flight at a time; starting a second
// while an unexpired one is pending fails so the first callback cannot be
// hijacked by a later state.
func (m *Manager) BeginAuthorization() (authURL string, state string, err error) {
	u, err := url.Parse(m.authorizeURL)
	if err != nil {
		return "", "", errors.InternalError("invalid authorize URL", err)
	}

	state, err = newState()
	if err != nil {
		return "", "", errors.InternalError("failed to generate state", err)
	}

	m.stateMu.Lock()
	if m.pendingState != "" && m.now().Sub(m.pendingIssued) < PendingLifetime {
		m.stateMu.Unlock()
		return "", "", errors.AuthError("an authorization is already in progress, complete or cancel it first")
	}
	m.pendingState = state
	m.pendingIssued = m.now()
	m.stateMu.Unlock()

	q := url.Values{}
	q.Set("client_id", m.clientID)
	q.Set("redirect_uri", m.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(m.scopes, " "))
	q.Set("state", state)
	q.Set("prompt", "consent")
	u.RawQuery = q.Encode()

	return u.String(), state, nil
}

// CancelAuthorization discards the pending authorization, if any. Called
// when the callback wait times out so the next attempt can start cleanly.
func (m *Manager) CancelAuthorization() {
	m.stateMu.Lock()
	m.pendingState = ""
	m.pendingIssued = time.Time{}
	m.stateMu.Unlock()
}

// consumeState checks the callback state against the pending one. The
// pending state is cleared on every attempt, so a replayed or stale
// callback can never complete the flow. An expired pending state counts
// as absent.
func (m *Manager) consumeState(state string) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	expected := m.pendingState
	issued := m.pendingIssued
	m.pendingState = ""
	m.pendingIssued = time.Time{}

	if expected == "" || m.now().Sub(issued) >= PendingLifetime {
		return errors.AuthError("no authorization in progress, restart the authorization flow")
	}
	if state != expected {
		return errors.AuthError("authorization state mismatch, restart the authorization flow")
	}
	return nil
}

// newState returns 32 bytes of crypto/rand entropy as unpadded URL-safe
// base64, matching what OAuth providers expect in the state parameter.
func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CompleteAuthorization exchanges the authorization code for tokens,
// stores the resulting credential, and persists it. businessID comes from
// the callback query and records which MYOB business granted access.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state, businessID string) (*Credential, error) {
	if err := m.consumeState(state); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.ValidationError("authorization code is empty")
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", m.clientID)
	data.Set("client_secret", m.clientSecret)
	data.Set("code", code)
	data.Set("redirect_uri", m.redirectURI)

	resp, err := m.requestToken(ctx, data)
	if err != nil {
		return nil, err
	}

	cred := resp.Credential(m.now())
	cred.BusinessID = businessID

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	m.persist(ctx, cred)

	logging.Info("MYOB authorization complete",
		logging.Field{Key: "expires_at", Value: cred.Expiry},
		logging.Field{Key: "business_id", Value: businessID})

	return cred, nil
}

// Token returns a credential with a usable access token, refreshing first
// when the stored one is expired or inside the refresh buffer. Concurrent
// callers serialize on the write lock; whoever arrives after the refresh
// sees the fresh credential and returns without a second token request.
func (m *Manager) Token(ctx context.Context) (*Credential, error) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()

	if cred == nil {
		return nil, errNotAuthenticated()
	}
	if !cred.IsExpired() {
		return cred, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another caller may have refreshed while we waited
	if m.cred == nil {
		return nil, errNotAuthenticated()
	}
	if !m.cred.IsExpired() {
		return m.cred, nil
	}
	if m.cred.RefreshToken == "" {
		return nil, errors.AuthError("access token expired and no refresh token is available, re-authenticate with MYOB")
	}

	return m.refreshLocked(ctx)
}

// AuthorizationHeader returns a ready-to-send Authorization header value,
// refreshing the credential first if needed.
func (m *Manager) AuthorizationHeader(ctx context.Context) (string, error) {
	cred, err := m.Token(ctx)
	if err != nil {
		return "", err
	}
	return cred.AuthorizationHeader(), nil
}

// ForceRefresh refreshes the credential regardless of expiry. stale is the
// access token the caller saw rejected; if the current token already
// differs, another caller refreshed in the meantime and no second request
// is made. Pass "" to refresh unconditionally.
func (m *Manager) ForceRefresh(ctx context.Context, stale string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return nil, errNotAuthenticated()
	}
	if stale != "" && m.cred.AccessToken != stale {
		return m.cred, nil
	}
	if m.cred.RefreshToken == "" {
		return nil, errors.AuthError("no refresh token is available, re-authenticate with MYOB")
	}

	return m.refreshLocked(ctx)
}

// refreshLocked exchanges the refresh token for a new credential. Callers
// must hold the write lock. MYOB rotates refresh tokens, so the old one is
// kept only when the response omits a replacement.
func (m *Manager) refreshLocked(ctx context.Context) (*Credential, error) {
	old := m.cred

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", old.RefreshToken)
	data.Set("client_id", m.clientID)
	data.Set("client_secret", m.clientSecret)

	resp, err := m.requestToken(ctx, data)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeAuth) {
			return nil, errors.AuthError("MYOB rejected the refresh token, re-authenticate with MYOB").WithCause(err)
		}
		return nil, err
	}

	cred := resp.Credential(m.now())
	if cred.RefreshToken == "" {
		cred.RefreshToken = old.RefreshToken
	}
	cred.BusinessID = old.BusinessID
	if cred.User == nil {
		cred.User = old.User
	}

	m.cred = cred
	m.persist(ctx, cred)

	logging.Debug("Refreshed MYOB access token",
		logging.Field{Key: "expires_at", Value: cred.Expiry})

	return cred, nil
}

// requestToken posts the form to the token endpoint through the circuit
// breaker and decodes the response.
func (m *Manager) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.InternalError("failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp *http.Response
	err = m.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = m.httpClient.Do(req)
		if httpErr != nil {
			return errors.ConnectionError("token request failed", httpErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			msg := errResp.Error
			if errResp.Description != "" {
				msg = fmt.Sprintf("%s: %s", errResp.Error, errResp.Description)
			}
			return nil, errors.AuthError(fmt.Sprintf("token endpoint rejected the request (%s)", msg)).
				WithCode(strconv.Itoa(resp.StatusCode))
		}
		return nil, errors.AuthError(fmt.Sprintf("token request failed with status %d", resp.StatusCode)).
			WithCode(strconv.Itoa(resp.StatusCode))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, errors.InternalError("failed to decode token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.AuthError("token endpoint returned no access token")
	}

	return &tokenResp, nil
}

// persist saves the credential, logging instead of failing the request
// when storage is unavailable; the in-memory credential still works.
func (m *Manager) persist(ctx context.Context, cred *Credential) {
	if err := m.store.Save(ctx, cred); err != nil {
		logging.Warn("Failed to persist credential",
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// Status is a snapshot of the connection for the status tool.
type Status struct {
	Authenticated   bool       `json:"authenticated"`
	TokenExpired    bool       `json:"token_expired,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ExpiresIn       string     `json:"expires_in,omitempty"`
	Scope           string     `json:"scope,omitempty"`
	BusinessID      string     `json:"business_id,omitempty"`
	User            *TokenUser `json:"user,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
}

// Status reports the current connection state without touching the network.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cred == nil || m.cred.AccessToken == "" {
		return Status{}
	}

	expiry := m.cred.Expiry
	return Status{
		Authenticated:   true,
		TokenExpired:    m.cred.IsExpired(),
		ExpiresAt:       &expiry,
		ExpiresIn:       time.Until(expiry).Round(time.Second).String(),
		Scope:           m.cred.Scope,
		BusinessID:      m.cred.BusinessID,
		User:            m.cred.User,
		HasRefreshToken: m.cred.RefreshToken != "",
	}
}

// Logout drops the credential from memory and storage and voids any
// pending authorization state.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()

	m.CancelAuthorization()

	if err := m.store.Delete(ctx); err != nil {
		return err
	}

	logging.Info("Logged out of MYOB")
	return nil
}

func errNotAuthenticated() *errors.AppError {
	return errors.AuthError("not authenticated with MYOB, run oauth_authorize first")
}
