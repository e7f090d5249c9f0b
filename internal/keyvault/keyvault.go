// Package keyvault manages per-provider API credential rotation and
// process-wide quota-exhaustion tracking for the geocoder dispatcher.
package keyvault

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Vault holds an ordered list of credentials per provider and rotates
// through them on quota exhaustion. It is process-local: each dispatcher
// worker process maintains its own view.
type Vault struct {
	mu      sync.Mutex
	keys    map[string][]string
	current map[string]int
}

// NewVault builds a Vault from a provider-to-ordered-key-list mapping. A
// provider absent from keys simply has no credentials to rotate through.
func NewVault(keys map[string][]string) *Vault {
	v := &Vault{
		keys:    make(map[string][]string, len(keys)),
		current: make(map[string]int, len(keys)),
	}
	for provider, list := range keys {
		v.keys[provider] = append([]string(nil), list...)
	}
	return v
}

// Current returns the active credential for provider.
func (v *Vault) Current(provider string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	list := v.keys[provider]
	if len(list) == 0 {
		return "", eris.Errorf("keyvault: no keys configured for provider %q", provider)
	}
	return list[v.current[provider]], nil
}

// Rotate advances provider to its next credential, wrapping to the first
// once the list is exhausted (an itertools.cycle equivalent). It reports
// whether a different key is now current than before rotation — false
// only when the provider has at most one key, so there is nothing to
// rotate to; with two or more keys it always wraps and returns true.
func (v *Vault) Rotate(provider string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	list := v.keys[provider]
	if len(list) <= 1 {
		return false
	}
	v.current[provider] = (v.current[provider] + 1) % len(list)
	return true
}

// Count returns the number of configured credentials for provider.
func (v *Vault) Count(provider string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.keys[provider])
}

// QuotaTracker records, per provider, the epoch time at which a quota
// exhaustion clears. It is process-local; quota state is not shared across
// dispatcher worker processes, since exhaustion re-discovers cheaply on any
// worker that hits the provider.
type QuotaTracker struct {
	mu        sync.Mutex
	exhausted map[string]int64 // provider -> reset unix epoch
}

// NewQuotaTracker returns an empty tracker.
func NewQuotaTracker() *QuotaTracker {
	return &QuotaTracker{exhausted: make(map[string]int64)}
}

// MarkExhausted records that provider's quota is exhausted until resetAt.
func (q *QuotaTracker) MarkExhausted(provider string, resetAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exhausted[provider] = resetAt.Unix()
}

// IsExhausted reports whether provider is currently disabled, given the
// current time. A stale (already-passed) entry is cleared and treated as
// not exhausted.
func (q *QuotaTracker) IsExhausted(provider string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	resetAt, ok := q.exhausted[provider]
	if !ok {
		return false
	}
	if now.Unix() >= resetAt {
		delete(q.exhausted, provider)
		return false
	}
	return true
}
