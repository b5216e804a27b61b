package myob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/cache"
	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

// fakeTokens is a TokenSource with a fixed credential and counted refreshes.
type fakeTokens struct {
	mu        sync.Mutex
	cred      *auth.Credential
	refreshes int
	staleSeen []string
}

func newFakeTokens(businessID string) *fakeTokens {
	return &fakeTokens{
		cred: &auth.Credential{
			AccessToken:  "at-1",
			TokenType:    "Bearer",
			RefreshToken: "rt-1",
			Expiry:       time.Now().Add(time.Hour),
			BusinessID:   businessID,
		},
	}
}

func (f *fakeTokens) Token(ctx context.Context) (*auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred, nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context, stale string) (*auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshes++
	f.staleSeen = append(f.staleSeen, stale)
	f.cred = &auth.Credential{
		AccessToken:  fmt.Sprintf("at-%d", f.refreshes+1),
		TokenType:    "Bearer",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(time.Hour),
		BusinessID:   f.cred.BusinessID,
	}
	return f.cred, nil
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newTestClient(t *testing.T, baseURL string, tokens TokenSource, respCache *cache.ResponseCache) *Client {
	t.Helper()

	if tokens == nil {
		tokens = newFakeTokens("")
	}

	c, err := NewClient(tokens, Options{
		BaseURL:       baseURL,
		APIKey:        "client-key",
		CompanyFileID: "cf-1",
		Cache:         respCache,
		Logger:        logging.NewNop(),
	})
	require.NoError(t, err)

	// Short waits keep retry tests fast
	c.backoff = backoff{Base: time.Millisecond, Factor: 2.0, Max: 10 * time.Millisecond}

	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, Options{APIKey: "k"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	_, err = NewClient(newFakeTokens(""), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestClient_Request_Headers(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"UID":"abc"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	result, err := c.Request(context.Background(), http.MethodGet, "/Sale/Invoice", &RequestOptions{
		Params: map[string]string{"$filter": "Status eq 'Open'"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/cf-1/Sale/Invoice", gotPath)
	assert.Equal(t, "Bearer at-1", gotHeaders.Get("Authorization"))
	assert.Equal(t, "client-key", gotHeaders.Get("x-myobapi-key"))
	assert.Equal(t, "v2", gotHeaders.Get("x-myobapi-version"))
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
	assert.Contains(t, gotQuery, "%24filter=")

	obj, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abc", obj["UID"])
}

func TestClient_Request_PostBody(t *testing.T) {
	var gotBody map[string]interface{}
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	result, err := c.Request(context.Background(), http.MethodPost, "/Sale/Invoice/Service", &RequestOptions{
		Body: map[string]interface{}{"Number": "INV-1"},
	})
	require.NoError(t, err)
	assert.Nil(t, result, "empty 2xx body decodes to nil")
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "INV-1", gotBody["Number"])
}

func TestClient_Request_CompanyFileResolution(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	t.Run("override beats default", func(t *testing.T) {
		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.Request(context.Background(), http.MethodGet, "/GeneralLedger/Account", &RequestOptions{
			CompanyFileID: "cf-override",
		})
		require.NoError(t, err)
		assert.Equal(t, "/cf-override/GeneralLedger/Account", gotPath)
	})

	t.Run("falls back to credential business id", func(t *testing.T) {
		tokens := newFakeTokens("biz-9")
		c, err := NewClient(tokens, Options{
			BaseURL: srv.URL,
			APIKey:  "client-key",
			Logger:  logging.NewNop(),
		})
		require.NoError(t, err)

		_, err = c.Request(context.Background(), http.MethodGet, "/GeneralLedger/Account", nil)
		require.NoError(t, err)
		assert.Equal(t, "/biz-9/GeneralLedger/Account", gotPath)
	})

	t.Run("nothing to resolve", func(t *testing.T) {
		c, err := NewClient(newFakeTokens(""), Options{
			BaseURL: srv.URL,
			APIKey:  "client-key",
			Logger:  logging.NewNop(),
		})
		require.NoError(t, err)

		_, err = c.Request(context.Background(), http.MethodGet, "/GeneralLedger/Account", nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})
}

func TestClient_Request_RefreshesOn401(t *testing.T) {
	var mu sync.Mutex
	var authHeaders []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		n := len(authHeaders)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tokens := newFakeTokens("")
	c := newTestClient(t, srv.URL, tokens, nil)

	result, err := c.Request(context.Background(), http.MethodGet, "/Contact/Customer", nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, authHeaders, 2)
	assert.Equal(t, "Bearer at-1", authHeaders[0])
	assert.Equal(t, "Bearer at-2", authHeaders[1], "retry must carry the refreshed token")
	assert.Equal(t, 1, tokens.refreshCount())
	assert.Equal(t, []string{"at-1"}, tokens.staleSeen)
}

func TestClient_Request_SecondUnauthorizedIsFatal(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := newFakeTokens("")
	c := newTestClient(t, srv.URL, tokens, nil)

	_, err := c.Request(context.Background(), http.MethodGet, "/Contact/Customer", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, tokens.refreshCount(), "only one refresh per call")
}

func TestClient_Request_RetryAfterHeader(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	start := time.Now()
	_, err := c.Request(context.Background(), http.MethodGet, "/Sale/Invoice", nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	assert.GreaterOrEqual(t, elapsed, time.Second, "Retry-After must override the backoff schedule")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestClient_Request_RateLimitExhaustion(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, err := c.Request(context.Background(), http.MethodGet, "/Sale/Invoice", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeRateLimit))
	assert.Equal(t, DefaultMaxAttempts, requests)
}

func TestClient_Request_RetriesServerErrors(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	result, err := c.Request(context.Background(), http.MethodGet, "/Sale/Invoice", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, requests)
}

func TestClient_Request_ClientErrorIsFatal(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"Errors":[{"Message":"Account is not valid."},{"Message":"Date is required."}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, err := c.Request(context.Background(), http.MethodPut, "/Sale/Invoice/Service", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAPI))
	assert.Contains(t, err.Error(), "Account is not valid.")
	assert.Contains(t, err.Error(), "Date is required.")
	assert.Equal(t, 1, requests, "4xx is not retried")
}

func TestClient_Request_ErrorExcerptBounded(t *testing.T) {
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'x'
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write(long)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, err := c.Request(context.Background(), http.MethodGet, "/Sale/Invoice", nil)
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	body, ok := appErr.Context["body"].(string)
	require.True(t, ok)
	assert.Len(t, body, maxExcerptBytes)
}

func TestClient_Request_CachesGets(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"Items":[{"DisplayID":"1-1100"}]}`)
	}))
	defer srv.Close()

	respCache := cache.NewResponseCache()
	c := newTestClient(t, srv.URL, nil, respCache)
	ctx := context.Background()

	opts := &RequestOptions{CacheLabel: "accounts"}
	first, err := c.Request(ctx, http.MethodGet, "/GeneralLedger/Account", opts)
	require.NoError(t, err)
	second, err := c.Request(ctx, http.MethodGet, "/GeneralLedger/Account", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, requests, "second call must come from cache")
	assert.Equal(t, first, second)

	// Different params miss the cached entry
	_, err = c.Request(ctx, http.MethodGet, "/GeneralLedger/Account", &RequestOptions{
		CacheLabel: "accounts",
		Params:     map[string]string{"$filter": "Type eq 'Bank'"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestClient_Invalidate(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"Items":[]}`)
	}))
	defer srv.Close()

	respCache := cache.NewResponseCache()
	c := newTestClient(t, srv.URL, nil, respCache)
	ctx := context.Background()

	opts := &RequestOptions{CacheLabel: "invoices"}
	_, err := c.Request(ctx, http.MethodGet, "/Sale/Invoice", opts)
	require.NoError(t, err)

	c.Invalidate("invoices")

	_, err = c.Request(ctx, http.MethodGet, "/Sale/Invoice", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, requests, "invalidation must force a fresh fetch")
}

// pagedHandler serves a listing of total items, honoring $top and $skip the
// way AccountRight does.
func pagedHandler(total int, requests *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*requests++

		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))

		items := make([]map[string]interface{}, 0, top)
		for i := skip; i < skip+top && i < total; i++ {
			items = append(items, map[string]interface{}{"Index": i})
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"Items": items})
	}
}

func TestClient_RequestPaged_DrainsPages(t *testing.T) {
	var requests int
	srv := httptest.NewServer(pagedHandler(950, &requests))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	items, err := c.RequestPaged(context.Background(), "/Sale/Invoice", nil)
	require.NoError(t, err)
	assert.Len(t, items, 950)
	assert.Equal(t, 3, requests, "400 + 400 + short page")

	first := items[0].(map[string]interface{})
	last := items[949].(map[string]interface{})
	assert.Equal(t, float64(0), first["Index"])
	assert.Equal(t, float64(949), last["Index"])
}

func TestClient_RequestPaged_CallerLimit(t *testing.T) {
	var requests int
	srv := httptest.NewServer(pagedHandler(5000, &requests))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	items, err := c.RequestPaged(context.Background(), "/Sale/Invoice", &PagedOptions{Top: 25})
	require.NoError(t, err)
	assert.Len(t, items, 25)
	assert.Equal(t, 1, requests)
}

func TestClient_RequestPaged_SafetyCap(t *testing.T) {
	var requests int
	srv := httptest.NewServer(pagedHandler(5000, &requests))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	items, err := c.RequestPaged(context.Background(), "/Sale/Invoice", nil)
	require.NoError(t, err)
	assert.Len(t, items, MaxPagedItems)
	assert.Equal(t, 3, requests, "400 + 400 + 200")
}

func TestClient_RequestPaged_Cached(t *testing.T) {
	var requests int
	srv := httptest.NewServer(pagedHandler(30, &requests))
	defer srv.Close()

	respCache := cache.NewResponseCache()
	c := newTestClient(t, srv.URL, nil, respCache)
	ctx := context.Background()

	opts := &PagedOptions{CacheLabel: "contacts"}
	first, err := c.RequestPaged(ctx, "/Contact", opts)
	require.NoError(t, err)
	second, err := c.RequestPaged(ctx, "/Contact", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, requests)
	assert.Equal(t, first, second)
}

func TestRetryAfterDelay(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"integer seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-3", 0},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfterDelay(tt.header, now))
		})
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := backoff{Base: 500 * time.Millisecond, Factor: 2.0, Max: 30 * time.Second, Jitter: 0.2}

	for retry, want := range map[int]time.Duration{
		0: 500 * time.Millisecond,
		1: time.Second,
		2: 2 * time.Second,
	} {
		d := b.delay(retry)
		assert.GreaterOrEqual(t, d, want)
		assert.Less(t, d, want+time.Duration(float64(want)*0.2)+time.Millisecond)
	}

	// Growth is capped at Max (plus jitter headroom)
	capped := b.delay(20)
	assert.GreaterOrEqual(t, capped, 30*time.Second)
	assert.Less(t, capped, 37*time.Second)
}

func TestExtractItems(t *testing.T) {
	page := map[string]interface{}{
		"Items": []interface{}{map[string]interface{}{"UID": "a"}},
	}
	assert.Len(t, extractItems(page), 1)
	assert.Nil(t, extractItems(nil))
	assert.Nil(t, extractItems(map[string]interface{}{"Count": 3}))
	assert.Nil(t, extractItems("not an object"))
}
