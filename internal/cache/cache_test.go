package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLFor(t *testing.T) {
	tests := []struct {
		label    string
		expected time.Duration
	}{
		{"company_files", 60 * time.Minute},
		{"accounts", 30 * time.Minute},
		{"tax_codes", 30 * time.Minute},
		{"bank_accounts", 30 * time.Minute},
		{"contacts", 15 * time.Minute},
		{"employees", 15 * time.Minute},
		{"jobs", 15 * time.Minute},
		{"invoices", DefaultTTL},
		{"unknown_resource", DefaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, TTLFor(tt.label))
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	params := map[string]string{"$filter": "Name eq 'Acme'", "$top": "5"}

	first := Fingerprint("contacts", "GET", "/Contact/Customer", params)
	second := Fingerprint("contacts", "GET", "/Contact/Customer", map[string]string{
		"$top":    "5",
		"$filter": "Name eq 'Acme'",
	})

	assert.Equal(t, first, second, "parameter order must not change the key")
	assert.True(t, strings.HasPrefix(first, "contacts:"), "key should carry the label prefix")
}

func TestFingerprint_Distinguishes(t *testing.T) {
	base := Fingerprint("contacts", "GET", "/Contact/Customer", nil)

	tests := []struct {
		name string
		key  string
	}{
		{"different method", Fingerprint("contacts", "POST", "/Contact/Customer", nil)},
		{"different path", Fingerprint("contacts", "GET", "/Contact/Supplier", nil)},
		{"different params", Fingerprint("contacts", "GET", "/Contact/Customer", map[string]string{"$top": "1"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.key)
		})
	}
}

func TestResponseCache_GetSet(t *testing.T) {
	c := NewResponseCache()
	key := Fingerprint("accounts", "GET", "/GeneralLedger/Account", nil)

	_, found := c.Get(key)
	assert.False(t, found, "empty cache should miss")

	c.Set(key, "accounts", `{"Items":[]}`)

	payload, found := c.Get(key)
	require.True(t, found)
	assert.Equal(t, `{"Items":[]}`, payload)
}

func TestResponseCache_Invalidate(t *testing.T) {
	c := NewResponseCache()

	c.Set(Fingerprint("invoices", "GET", "/Sale/Invoice", nil), "invoices", "a")
	c.Set(Fingerprint("invoices", "GET", "/Sale/Invoice/123", nil), "invoices", "b")
	c.Set(Fingerprint("accounts", "GET", "/GeneralLedger/Account", nil), "accounts", "c")

	removed := c.Invalidate("invoices")
	assert.Equal(t, 2, removed)

	_, found := c.Get(Fingerprint("invoices", "GET", "/Sale/Invoice", nil))
	assert.False(t, found, "invalidated entry should be gone")

	_, found = c.Get(Fingerprint("accounts", "GET", "/GeneralLedger/Account", nil))
	assert.True(t, found, "other labels must survive invalidation")
}

func TestResponseCache_InvalidateMissingPrefix(t *testing.T) {
	c := NewResponseCache()
	c.Set(Fingerprint("accounts", "GET", "/GeneralLedger/Account", nil), "accounts", "a")

	assert.Equal(t, 0, c.Invalidate("jobs"))
	assert.Equal(t, 1, c.Len())
}

func TestResponseCache_Clear(t *testing.T) {
	c := NewResponseCache()

	c.Set(Fingerprint("accounts", "GET", "/GeneralLedger/Account", nil), "accounts", "a")
	c.Set(Fingerprint("contacts", "GET", "/Contact/Customer", nil), "contacts", "b")
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
