// Package cache provides an in-memory response cache for MYOB API reads.
// Entries are keyed by a fingerprint of the request and expire on a
// per-resource TTL, so repeated tool calls within a window are served
// without touching the network. Mutations invalidate by resource prefix.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL applies to resources without an entry in the TTL table.
const DefaultTTL = 5 * time.Minute

// labelTTLs maps a resource label to how long its responses stay fresh.
// Slow-moving reference data keeps longer windows than transactional data.
var labelTTLs = map[string]time.Duration{
	"company_files": 60 * time.Minute,
	"accounts":      30 * time.Minute,
	"tax_codes":     30 * time.Minute,
	"bank_accounts": 30 * time.Minute,
	"contacts":      15 * time.Minute,
	"employees":     15 * time.Minute,
	"jobs":          15 * time.Minute,
}

// TTLFor returns the freshness window for a resource label.
func TTLFor(label string) time.Duration {
	if ttl, ok := labelTTLs[label]; ok {
		return ttl
	}
	return DefaultTTL
}

// ResponseCache wraps patrickmn/go-cache for in-memory caching of API
// response payloads. It is safe for concurrent use.
type ResponseCache struct {
	store *gocache.Cache
}

// NewResponseCache creates a new response cache instance.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		store: gocache.New(DefaultTTL, 10*time.Minute),
	}
}

// Fingerprint builds the cache key for a request. The label prefixes the
// key so mutations can invalidate a whole resource family, and the digest
// covers method, path, and sorted query parameters so distinct requests
// never collide.
func Fingerprint(label, method, path string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte("\n"))
	h.Write([]byte(path))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte("\n"))
		h.Write([]byte(k))
		h.Write([]byte("="))
		h.Write([]byte(params[k]))
	}

	return fmt.Sprintf("%s:%x", label, h.Sum(nil))
}

// Get retrieves a cached response payload.
func (c *ResponseCache) Get(key string) (string, bool) {
	if value, found := c.store.Get(key); found {
		if payload, ok := value.(string); ok {
			return payload, true
		}
	}
	return "", false
}

// Set stores a response payload under the key with the label's TTL.
func (c *ResponseCache) Set(key, label, payload string) {
	c.store.Set(key, payload, TTLFor(label))
}

// Invalidate removes every entry whose key starts with prefix and returns
// how many were dropped. Callers pass the resource label after a mutation.
func (c *ResponseCache) Invalidate(prefix string) int {
	removed := 0
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear removes all items from the cache.
func (c *ResponseCache) Clear() {
	c.store.Flush()
}

// Len returns the number of live entries, expired items included until the
// next cleanup run.
func (c *ResponseCache) Len() int {
	return c.store.ItemCount()
}
