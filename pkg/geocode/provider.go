// Package geocode defines the provider adapter contract every external
// geocoding API implements, the scoring function used to pick the best of
// several alternates a single provider call returns, and the shared
// iterative field-shedding harness (Base) every per-provider adapter
// embeds.
package geocode

import (
	"context"
	"time"
)

// Address is the set of fields a provider may be asked to geocode, or the
// comparable fields parsed back out of its response. Fields absent from the
// map are considered not supplied.
type Address map[string]string

// Clone returns a shallow copy of addr, safe to mutate independently.
func (addr Address) Clone() Address {
	out := make(Address, len(addr))
	for k, v := range addr {
		out[k] = v
	}
	return out
}

// Result is a single geocode alternate returned by a provider's response.
type Result struct {
	Longitude  float64
	Latitude   float64
	Accuracy   string
	Confidence string
	Quality    string
	Raw        map[string]any // the provider's raw per-alternate fields, for ParseReturnedAddress
}

// GeocodeResult is the fully-assembled outcome of one Geocode call: the
// winning (max-scoring) alternate plus the meta bookkeeping recorded on the
// stored row: the field projection actually sent, the parsed returned
// address, which fields were supplied vs. shed, and the guess/distance pair
// when the input carried a guess coordinate.
type GeocodeResult struct {
	Result
	Supplied      []string
	Rejected      []string
	AddressSent   Address
	AddressOut    Address
	GuessDistance *float64 // metres, set iff the input carried a guess
}

// RateLimitError signals the provider's own rate limit was hit for this
// request; the dispatcher retries with backoff and, on exhaustion, treats
// it as quota exhaustion if the provider opts in (quota_exceed_on_throttle).
type RateLimitError struct{ Provider string }

func (e *RateLimitError) Error() string { return "geocode: rate limit exceeded: " + e.Provider }

// FailedRequestError signals a provider-side failure worth retrying.
type FailedRequestError struct {
	Provider string
	Cause    error
}

func (e *FailedRequestError) Error() string { return "geocode: failed request: " + e.Provider }
func (e *FailedRequestError) Unwrap() error  { return e.Cause }

// InvalidRequestError signals a caller-side failure: retrying won't help.
type InvalidRequestError struct {
	Provider string
	Cause    error
}

func (e *InvalidRequestError) Error() string { return "geocode: invalid request: " + e.Provider }
func (e *InvalidRequestError) Unwrap() error  { return e.Cause }

// NoResultsFoundError signals the provider understood the request but found
// nothing (or returned a malformed success); the adapter sheds the last
// priority field and retries.
type NoResultsFoundError struct{ Provider string }

func (e *NoResultsFoundError) Error() string { return "geocode: no results found: " + e.Provider }

// QuotaExhaustedError signals every credential for this provider is
// exhausted; the dispatcher disables the provider until ResetEpoch.
type QuotaExhaustedError struct {
	Provider   string
	ResetEpoch int64
}

func (e *QuotaExhaustedError) Error() string { return "geocode: quota exhausted: " + e.Provider }

// Provider is the capability set every external geocoding adapter
// implements: a name, a cache-invalidating version, an optional TTL for
// cached results, the next quota reset time, and the geocode/parse pair.
type Provider interface {
	// Name returns the provider's identifier, matching a model.Provider*
	// constant.
	Name() string

	// Version reports the adapter's declared version (Base returns its
	// ProviderVersion as is).
	Version() string

	// TTL returns how long a successful response may be cached, and
	// whether caching applies at all (a provider with no TTL opinion
	// returns cacheable=false).
	TTL() (ttl int64, cacheable bool)

	// QuotaResetEpoch returns the wall-clock time at which an exhausted
	// quota may be retried. Defaults to one hour from now; Google-family
	// adapters override to next midnight Pacific.
	QuotaResetEpoch(now time.Time) time.Time

	// QuotaExceedOnThrottle reports whether a final rate-limit failure
	// (after retries) should be re-raised as QuotaExhaustedError — true
	// for providers whose API does not distinguish per-second throttling
	// from daily exhaustion (the Google family).
	QuotaExceedOnThrottle() bool

	// Geocode projects address to (required ∪ priority) fields, issues
	// the external call, and on NoResultsFoundError sheds the last
	// priority field and retries until either a result is found or every
	// priority field has been shed. key identifies the active API
	// credential (opaque to the adapter).
	Geocode(ctx context.Context, key string, address Address, guess *Coordinate) (GeocodeResult, error)

	// ParseReturnedAddress extracts a comparable address (the same field
	// names as Address) from one alternate's raw response fields, used to
	// score how well the alternate matches the input address.
	ParseReturnedAddress(raw map[string]any) Address
}

// Coordinate is the WGS-84 longitude/latitude pair a caller's "guess"
// carries, used only to score returned alternates by proximity — never
// sent to the provider itself.
type Coordinate struct {
	Longitude float64
	Latitude  float64
}
