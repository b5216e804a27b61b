// Package myob implements the AccountRight API client. All resource
// handlers funnel through Client.Request, which owns authentication
// headers, retry with backoff, rate limit waits, response caching, and
// page draining for Items listings.
package myob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/cache"
	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

const (
	// DefaultBaseURL is the AccountRight API root.
	DefaultBaseURL = "https://api.myob.com/accountright"

	// APIVersion is sent as x-myobapi-version on every request.
	APIVersion = "v2"

	// DefaultMaxAttempts bounds the retry loop: the initial request plus
	// three retries.
	DefaultMaxAttempts = 4

	// DefaultPageSize is the $top used when draining paged listings.
	DefaultPageSize = 400

	// MaxPagedItems caps accumulation across pages so a runaway listing
	// cannot exhaust memory or the rate limit.
	MaxPagedItems = 1000

	// maxExcerptBytes bounds the response body carried inside an APIError.
	maxExcerptBytes = 500

	// maxRetryAfterWait caps how long a Retry-After header can stall a call.
	maxRetryAfterWait = 60 * time.Second
)

// TokenSource supplies access tokens for outgoing requests. *auth.Manager
// implements it.
type TokenSource interface {
	Token(ctx context.Context) (*auth.Credential, error)
	ForceRefresh(ctx context.Context, stale string) (*auth.Credential, error)
}

// Options configures a Client. Everything except APIKey has a default.
type Options struct {
	// BaseURL overrides the AccountRight API root, for tests
	BaseURL string
	// APIKey is the OAuth client id, sent as x-myobapi-key
	APIKey string
	// CompanyFileID is the default company file, overridable per request
	CompanyFileID string
	HTTPClient    *http.Client
	Cache         *cache.ResponseCache
	MaxAttempts   int
	Logger        logging.Logger
}

// Client is the authenticated AccountRight HTTP client. One instance is
// shared by all concurrent tool calls.
type Client struct {
	baseURL       string
	apiKey        string
	companyFileID string
	httpClient    *http.Client
	tokens        TokenSource
	cache         *cache.ResponseCache
	maxAttempts   int
	backoff       backoff
	logger        logging.Logger
}

// NewClient creates an AccountRight client backed by the given token source.
func NewClient(tokens TokenSource, opts Options) (*Client, error) {
	if tokens == nil {
		return nil, errors.ValidationError("token source is required")
	}
	if opts.APIKey == "" {
		return nil, errors.ValidationError("API key is required")
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        opts.APIKey,
		companyFileID: opts.CompanyFileID,
		httpClient:    httpClient,
		tokens:        tokens,
		cache:         opts.Cache,
		maxAttempts:   maxAttempts,
		backoff:       defaultBackoff(),
		logger:        logger,
	}, nil
}

// RequestOptions carries the per-request knobs. A nil *RequestOptions is
// valid and means no params, no body, no caching.
type RequestOptions struct {
	// CompanyFileID overrides the client default for this request
	CompanyFileID string
	// Params become the query string
	Params map[string]string
	// Body is JSON-encoded when non-nil
	Body interface{}
	// CacheLabel enables response caching for GETs; the label picks the
	// TTL and scopes invalidation
	CacheLabel string
}

// Request performs one authenticated exchange against a company-file scoped
// path such as "/Sale/Invoice". The company file id comes from the request
// options, the client default, or the credential's business id, in that
// order. The decoded JSON body is returned; an empty body decodes to nil.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (interface{}, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	fileID, err := c.resolveCompanyFile(ctx, opts.CompanyFileID)
	if err != nil {
		return nil, err
	}

	return c.execute(ctx, method, "/"+fileID+normalizePath(path), opts)
}

// RequestGlobal performs an exchange against a path outside any company
// file, such as the company file index at "/".
func (c *Client) RequestGlobal(ctx context.Context, method, path string, opts *RequestOptions) (interface{}, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	return c.execute(ctx, method, normalizePath(path), opts)
}

// PagedOptions carries the knobs for a paged listing.
type PagedOptions struct {
	CompanyFileID string
	// Params hold $filter and $orderby; $top and $skip are managed here
	Params map[string]string
	// Top limits how many items the caller wants; 0 means up to the cap
	Top        int
	CacheLabel string
}

// RequestPaged drains an Items-paged listing, requesting DefaultPageSize
// items per page and advancing $skip until a page comes back short, the
// caller's Top is satisfied, or MaxPagedItems accumulate. The drained slice
// is cached as a single entry when a cache label is set.
func (c *Client) RequestPaged(ctx context.Context, path string, opts *PagedOptions) ([]interface{}, error) {
	if opts == nil {
		opts = &PagedOptions{}
	}

	fileID, err := c.resolveCompanyFile(ctx, opts.CompanyFileID)
	if err != nil {
		return nil, err
	}
	fullPath := "/" + fileID + normalizePath(path)

	limit := opts.Top
	if limit <= 0 || limit > MaxPagedItems {
		limit = MaxPagedItems
	}

	var cacheKey string
	if c.cache != nil && opts.CacheLabel != "" {
		fpParams := make(map[string]string, len(opts.Params)+1)
		for k, v := range opts.Params {
			fpParams[k] = v
		}
		fpParams["limit"] = strconv.Itoa(limit)

		cacheKey = cache.Fingerprint(opts.CacheLabel, http.MethodGet, fullPath, fpParams)
		if payload, ok := c.cache.Get(cacheKey); ok {
			var items []interface{}
			if err := json.Unmarshal([]byte(payload), &items); err == nil {
				return items, nil
			}
		}
	}

	items := make([]interface{}, 0, limit)
	skip := 0
	for len(items) < limit {
		pageSize := DefaultPageSize
		if remaining := limit - len(items); remaining < pageSize {
			pageSize = remaining
		}

		params := make(map[string]string, len(opts.Params)+2)
		for k, v := range opts.Params {
			params[k] = v
		}
		params["$top"] = strconv.Itoa(pageSize)
		if skip > 0 {
			params["$skip"] = strconv.Itoa(skip)
		}

		page, err := c.execute(ctx, http.MethodGet, fullPath, &RequestOptions{Params: params})
		if err != nil {
			return nil, err
		}

		pageItems := extractItems(page)
		items = append(items, pageItems...)
		if len(pageItems) < pageSize {
			break
		}
		skip += len(pageItems)
	}

	if len(items) > limit {
		items = items[:limit]
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(items); err == nil {
			c.cache.Set(cacheKey, opts.CacheLabel, string(payload))
		}
	}

	return items, nil
}

// Invalidate drops cached entries for the given resource families. Mutation
// handlers call this after a success response so the next listing refetches.
func (c *Client) Invalidate(labels ...string) {
	if c.cache == nil {
		return
	}
	for _, label := range labels {
		removed := c.cache.Invalidate(label + ":")
		if removed > 0 {
			c.logger.Debug("Invalidated cached responses",
				logging.Field{Key: "label", Value: label},
				logging.Field{Key: "removed", Value: removed})
		}
	}
}

// resolveCompanyFile picks the company file for a request: explicit
// override, then the configured default, then the business id captured
// during authorization.
func (c *Client) resolveCompanyFile(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.companyFileID != "" {
		return c.companyFileID, nil
	}

	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if cred.BusinessID != "" {
		return cred.BusinessID, nil
	}

	return "", errors.ValidationError("no company file selected: pass company_file_id or set MYOB_COMPANY_FILE_ID")
}

// execute runs the attempt loop for one exchange. path is the full
// API-relative path including the company file id when there is one.
func (c *Client) execute(ctx context.Context, method, path string, opts *RequestOptions) (interface{}, error) {
	var cacheKey string
	if method == http.MethodGet && opts.CacheLabel != "" && c.cache != nil {
		cacheKey = cache.Fingerprint(opts.CacheLabel, method, path, opts.Params)
		if payload, ok := c.cache.Get(cacheKey); ok {
			var cached interface{}
			if err := json.Unmarshal([]byte(payload), &cached); err == nil {
				c.logger.Debug("Serving cached response",
					logging.Field{Key: "path", Value: path},
					logging.Field{Key: "label", Value: opts.CacheLabel})
				return cached, nil
			}
		}
	}

	var body []byte
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, errors.InternalError("failed to encode request body", err)
		}
		body = encoded
	}

	reqURL := c.baseURL + path
	if len(opts.Params) > 0 {
		q := url.Values{}
		for k, v := range opts.Params {
			q.Set(k, v)
		}
		reqURL += "?" + q.Encode()
	}

	// The credential is resolved once; only a 401 swaps it for a fresh one.
	// Backoff sleeps inside the loop must not trigger redundant refreshes.
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	refreshed := false

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := c.newRequest(ctx, method, reqURL, body, cred)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errors.ConnectionError(fmt.Sprintf("request to %s failed", path), err)
			if attempt == c.maxAttempts {
				return nil, lastErr
			}
			c.logger.Warn("MYOB request failed, retrying",
				logging.Field{Key: "path", Value: path},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: err.Error()})
			if err := sleepContext(ctx, c.backoff.delay(attempt-1)); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = errors.ConnectionError(fmt.Sprintf("failed to read response from %s", path), readErr)
			if attempt == c.maxAttempts {
				return nil, lastErr
			}
			if err := sleepContext(ctx, c.backoff.delay(attempt-1)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result, err := decodeBody(respBody)
			if err != nil {
				return nil, err
			}
			if cacheKey != "" && result != nil {
				c.cache.Set(cacheKey, opts.CacheLabel, string(respBody))
			}
			c.logger.Debug("MYOB request complete",
				logging.Field{Key: "method", Value: method},
				logging.Field{Key: "path", Value: path},
				logging.Field{Key: "status", Value: resp.StatusCode})
			return result, nil

		case resp.StatusCode == http.StatusUnauthorized:
			// One refresh per call; a second 401 means the credential is
			// beyond saving here
			if refreshed {
				return nil, errors.AuthError("MYOB rejected the access token twice, re-authenticate with MYOB")
			}
			refreshed = true
			lastErr = errors.AuthError("MYOB rejected the access token")
			fresh, err := c.tokens.ForceRefresh(ctx, cred.AccessToken)
			if err != nil {
				return nil, err
			}
			cred = fresh
			c.logger.Debug("Access token rejected, retrying after refresh",
				logging.Field{Key: "path", Value: path})
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.RateLimitError(path)
			if attempt == c.maxAttempts {
				return nil, lastErr
			}
			wait := retryAfterDelay(resp.Header.Get("Retry-After"), time.Now())
			if wait <= 0 {
				wait = c.backoff.delay(attempt - 1)
			}
			if wait > maxRetryAfterWait {
				wait = maxRetryAfterWait
			}
			c.logger.Warn("MYOB rate limit hit, backing off",
				logging.Field{Key: "path", Value: path},
				logging.Field{Key: "wait", Value: wait.String()})
			if err := sleepContext(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			lastErr = c.apiError(resp.StatusCode, respBody, path)
			if attempt == c.maxAttempts {
				return nil, lastErr
			}
			c.logger.Warn("MYOB server error, retrying",
				logging.Field{Key: "path", Value: path},
				logging.Field{Key: "status", Value: resp.StatusCode},
				logging.Field{Key: "attempt", Value: attempt})
			if err := sleepContext(ctx, c.backoff.delay(attempt-1)); err != nil {
				return nil, err
			}
			continue

		default:
			// Remaining 4xx statuses are caller errors; retrying cannot help
			return nil, c.apiError(resp.StatusCode, respBody, path)
		}
	}

	return nil, lastErr
}

func (c *Client) newRequest(ctx context.Context, method, reqURL string, body []byte, cred *auth.Credential) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, errors.InternalError("failed to create request", err)
	}

	req.Header.Set("Authorization", cred.AuthorizationHeader())
	req.Header.Set("x-myobapi-key", c.apiKey)
	req.Header.Set("x-myobapi-version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// apiError builds the error for a non-2xx response, lifting MYOB's own
// message out of the Errors array when the body carries one.
func (c *Client) apiError(status int, body []byte, path string) *errors.AppError {
	excerpt := string(body)
	if len(excerpt) > maxExcerptBytes {
		excerpt = excerpt[:maxExcerptBytes]
	}

	appErr := errors.APIError(status, excerpt, path)
	if msg := extractAPIMessage(body); msg != "" {
		appErr.Message = fmt.Sprintf("MYOB API returned %d for %s: %s", status, path, msg)
	}
	return appErr
}

// extractAPIMessage pulls the human-readable messages out of MYOB's
// standard error body {"Errors": [{"Message": ...}, ...]}.
func extractAPIMessage(body []byte) string {
	var payload struct {
		Errors []struct {
			Message string `json:"Message"`
		} `json:"Errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	var msgs []string
	for _, e := range payload.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func decodeBody(body []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, errors.InternalError("failed to decode MYOB response", err)
	}
	return v, nil
}

// extractItems pulls the Items array out of a paged listing response.
func extractItems(page interface{}) []interface{} {
	obj, ok := page.(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := obj["Items"].([]interface{})
	if !ok {
		return nil
	}
	return items
}

func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
