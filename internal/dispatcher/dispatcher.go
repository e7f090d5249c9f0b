// Package dispatcher orchestrates geocode calls around a pkg/geocode.Provider:
// retry-with-backoff-and-jitter, key rotation on quota exhaustion, and a
// process-wide quota-disabled check consulted before every task. Tasks that
// exhaust retries are handed to internal/deadletter rather than dropped.
package dispatcher

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/keyvault"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/pkg/geocode"
)

// Config tunes the retry policy. New replaces a Config whose MaxRetries is
// <= 0 with DefaultConfig (base=1s, cap=60s, 3 retries); Google-family
// adapters get 1 retry through the Config the caller passes in.
type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the non-Google-family retry policy.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: 60 * time.Second}
}

// Task is one geocode request: an entity identity, its address, and the
// provider to dispatch it against.
type Task struct {
	Key     model.EntityKey
	BatchID string
	Address geocode.Address
	Guess   *geocode.Coordinate
}

// Dispatcher fans geocode tasks out to providers, applying retry, key
// rotation, and quota-disabling policy uniformly regardless of which
// provider is targeted.
type Dispatcher struct {
	providers map[string]geocode.Provider
	vault     *keyvault.Vault
	quota     *keyvault.QuotaTracker
	cfg       Config
	now       func() time.Time
}

// New builds a Dispatcher over the given provider registry.
func New(providers map[string]geocode.Provider, vault *keyvault.Vault, quota *keyvault.QuotaTracker, cfg Config) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultConfig()
	}
	return &Dispatcher{providers: providers, vault: vault, quota: quota, cfg: cfg, now: time.Now}
}

// Dispatch runs task against providerName, producing one candidate row on
// success. It applies, in order: the quota-disabled fast-fail check, the
// provider's own retry budget (Google-family adapters effectively get 1 by
// the caller passing a 1-retry Config), key rotation on quota exhaustion,
// and quota-disabling on final exhaustion.
func (d *Dispatcher) Dispatch(ctx context.Context, providerName string, task Task) (model.Candidate, error) {
	provider, ok := d.providers[providerName]
	if !ok {
		return model.Candidate{}, &geocode.InvalidRequestError{Provider: providerName}
	}

	now := d.now()
	if d.quota.IsExhausted(providerName, now) {
		return model.Candidate{}, &geocode.QuotaExhaustedError{Provider: providerName}
	}

	used := 0
	for {
		result, err := d.callWithRetry(ctx, provider, task)
		if err == nil {
			c := toCandidate(task.Key, task.BatchID, provider.Name(), task, result)
			if ttl, cacheable := provider.TTL(); cacheable {
				c.Timestamp = d.now().Unix() + ttl
			}
			return c, nil
		}

		if isQuotaExhausted(err) {
			used++
			if d.vault.Count(providerName) > used && d.vault.Rotate(providerName) {
				zap.L().Warn("dispatcher: rotating credential after quota exhaustion",
					zap.String("provider", providerName), zap.Int("attempt", used))
				continue
			}
			resetAt := provider.QuotaResetEpoch(d.now())
			d.quota.MarkExhausted(providerName, resetAt)
			return model.Candidate{}, err
		}

		return model.Candidate{}, err
	}
}

// callWithRetry applies backoff+jitter retry around a single provider call,
// re-raising a final rate-limit failure as QuotaExhaustedError when the
// provider opts into that ambiguity (quota_exceed_on_throttle).
func (d *Dispatcher) callWithRetry(ctx context.Context, provider geocode.Provider, task Task) (geocode.GeocodeResult, error) {
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		key, err := d.vault.Current(provider.Name())
		if err != nil {
			return geocode.GeocodeResult{}, err
		}

		result, err := provider.Geocode(ctx, key, task.Address, task.Guess)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return geocode.GeocodeResult{}, err
		}

		if attempt == d.cfg.MaxRetries-1 {
			break
		}

		delay := jitteredBackoff(attempt, d.cfg.BaseBackoff, d.cfg.MaxBackoff)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return geocode.GeocodeResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	if _, ok := lastErr.(*geocode.RateLimitError); ok && provider.QuotaExceedOnThrottle() {
		return geocode.GeocodeResult{}, &geocode.QuotaExhaustedError{Provider: provider.Name()}
	}
	return geocode.GeocodeResult{}, lastErr
}

// isRetryable reports whether err warrants another attempt within the same
// credential: FailedRequestError or RateLimitError, nothing else.
func isRetryable(err error) bool {
	switch err.(type) {
	case *geocode.FailedRequestError, *geocode.RateLimitError:
		return true
	default:
		return false
	}
}

func isQuotaExhausted(err error) bool {
	_, ok := err.(*geocode.QuotaExhaustedError)
	return ok
}

// jitteredBackoff computes U(0, min(cap, base*2^attempt)).
func jitteredBackoff(attempt int, base, capDuration time.Duration) time.Duration {
	upper := base * (1 << attempt)
	if upper > capDuration {
		upper = capDuration
	}
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(upper)))
}

// toCandidate assembles a model.Candidate from a successful GeocodeResult,
// carrying the adapter's meta bookkeeping onto the stored row.
func toCandidate(key model.EntityKey, batchID, provider string, task Task, result geocode.GeocodeResult) model.Candidate {
	c := model.NewCandidate(key, provider, model.Coordinate{Longitude: result.Longitude, Latitude: result.Latitude})
	c.BatchID = batchID
	c.Accuracy = result.Accuracy
	c.Confidence = result.Confidence
	c.Quality = result.Quality
	c.City = result.AddressOut["city"]
	c.CountryCode = result.AddressOut["country_code"]
	c.Meta = model.Meta{
		Address:    result.AddressSent,
		AddressOut: result.AddressOut,
		Supplied:   result.Supplied,
		Rejected:   result.Rejected,
		Distance:   result.GuessDistance,
	}
	if task.Guess != nil {
		c.Meta.Guess = &model.Coordinate{Longitude: task.Guess.Longitude, Latitude: task.Guess.Latitude}
	}
	return c
}
