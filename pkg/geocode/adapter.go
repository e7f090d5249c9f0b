package geocode

import (
	"context"
	"time"

	"github.com/trivago/geolocator/internal/fuzzy"
)

// Transport is the provider-specific surface each external adapter
// implements: issuing the actual HTTP call and parsing its response. Base
// wraps a Transport with the iterative field-shedding and alternate-scoring
// logic shared by every provider.
type Transport interface {
	// Request issues one geocode call against the already-projected
	// address (required ∪ remaining priority fields) and returns every
	// alternate the response contained. An empty, non-error result slice
	// is treated the same as NoResultsFoundError.
	Request(ctx context.Context, key string, projected Address) ([]Result, error)

	// ParseReturnedAddress extracts a comparable address from one
	// alternate's raw fields.
	ParseReturnedAddress(raw map[string]any) Address
}

// Base implements the Provider interface's Geocode method around a
// Transport: field projection, iterative shedding (tail-first) on
// NoResultsFoundError, and scoring-based alternate selection. Per-provider
// adapters embed Base and only need to supply identity (name/version/ttl/
// quota policy), field configuration, and a Transport.
type Base struct {
	ProviderName       string
	ProviderVersion    string
	TTLSeconds         int64 // 0 means "do not cache"
	Cacheable          bool
	Required           []string
	Priority           []string // most to least important; shed tail-first
	QuotaOnThrottle    bool
	QuotaResetEpochFn  func(now time.Time) time.Time
	Transport          Transport
}

// Name implements Provider.
func (b *Base) Name() string { return b.ProviderName }

// Version implements Provider.
func (b *Base) Version() string { return b.ProviderVersion }

// TTL implements Provider.
func (b *Base) TTL() (int64, bool) { return b.TTLSeconds, b.Cacheable }

// QuotaExceedOnThrottle implements Provider.
func (b *Base) QuotaExceedOnThrottle() bool { return b.QuotaOnThrottle }

// QuotaResetEpoch implements Provider. Defaults to one hour from now when
// no override function is set.
func (b *Base) QuotaResetEpoch(now time.Time) time.Time {
	if b.QuotaResetEpochFn != nil {
		return b.QuotaResetEpochFn(now)
	}
	return now.Add(time.Hour)
}

// ParseReturnedAddress implements Provider by delegating to the Transport.
func (b *Base) ParseReturnedAddress(raw map[string]any) Address {
	return b.Transport.ParseReturnedAddress(raw)
}

// Geocode implements Provider's iterative field-shedding loop: project to
// required+priority fields present on the input, attempt the call, and on
// NoResultsFoundError shed the last remaining priority field (recording the
// omission in Rejected) and retry until either a result is found or no
// priority fields remain.
func (b *Base) Geocode(ctx context.Context, key string, address Address, guess *Coordinate) (GeocodeResult, error) {
	supplied, remaining := project(address, b.Required, b.Priority)
	var rejected []string

	for {
		projected := make(Address, len(supplied)+len(remaining))
		for _, f := range supplied {
			projected[f] = address[f]
		}
		for _, f := range remaining {
			projected[f] = address[f]
		}

		results, err := b.Transport.Request(ctx, key, projected)
		if err == nil && len(results) == 0 {
			err = &NoResultsFoundError{Provider: b.ProviderName}
		}

		if err != nil {
			if isShedRetryable(err) && len(remaining) > 0 {
				shed := remaining[len(remaining)-1]
				remaining = remaining[:len(remaining)-1]
				rejected = append(rejected, shed)
				continue
			}
			return GeocodeResult{}, err
		}

		return b.buildResult(address, projected, results, supplied, rejected, guess), nil
	}
}

// isShedRetryable reports whether err should trigger shedding the next
// priority field rather than surfacing immediately. Malformed-success
// responses arrive here as NoResultsFoundError too; the transports map
// them before returning.
func isShedRetryable(err error) bool {
	switch err.(type) {
	case *NoResultsFoundError:
		return true
	default:
		return false
	}
}

// project splits an address's present fields into the required set (always
// included) and the priority fields present on the input, preserving
// priority order so shedding pops the tail (least important) first.
func project(address Address, required, priority []string) (supplied, remaining []string) {
	for _, f := range required {
		if address[f] != "" {
			supplied = append(supplied, f)
		}
	}
	for _, f := range priority {
		if address[f] != "" {
			remaining = append(remaining, f)
		}
	}
	return supplied, remaining
}

func (b *Base) buildResult(input, projected Address, results []Result, supplied, rejected []string, guess *Coordinate) GeocodeResult {
	distances := make([]*float64, len(results))
	if guess != nil {
		for i, r := range results {
			d := fuzzy.HaversineMeters(guess.Longitude, guess.Latitude, r.Longitude, r.Latitude)
			distances[i] = &d
		}
	}

	best := BestAlternate(projected, results, b.Transport.ParseReturnedAddress, distancesOrZero(results, distances))
	winner := results[best]
	out := GeocodeResult{
		Result:      winner,
		Supplied:    supplied,
		Rejected:    rejected,
		AddressSent: projected,
		AddressOut:  b.Transport.ParseReturnedAddress(winner.Raw),
	}
	if guess != nil {
		out.GuessDistance = distances[best]
	}
	return out
}

// distancesOrZero pads a nil distances slice (no guess supplied) with nils
// so BestAlternate can index it uniformly.
func distancesOrZero(results []Result, distances []*float64) []*float64 {
	if len(distances) == len(results) {
		return distances
	}
	return make([]*float64, len(results))
}
