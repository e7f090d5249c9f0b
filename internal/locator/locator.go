// Package locator implements the final pipeline stage: once an entity's
// transfer-table registration expires (the signal that geocoding and
// consolidation are done), look up its winning candidate and resolve
// locality/country identifiers through an external HTTP service, then
// publish the enriched record downstream.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/resilience"
)

// MinWinnerScore is the minimum consolidated score an entity needs before
// it is worth a locality lookup.
const MinWinnerScore = 0.5

// NsTag is the fixed namespace value the wire format attaches to any
// non-null *_id field.
const NsTag int64 = 200

// LimitExceededError signals the locality service's hard per-key quota was
// hit (429 with body "Limit Exceeded"); the task aborts outright rather
// than retrying.
type LimitExceededError struct{}

func (e *LimitExceededError) Error() string { return "locator: limit exceeded" }

// FatalError signals a 403 from the locality service: the caller's
// credentials are rejected, not worth retrying.
type FatalError struct{ StatusCode int }

func (e *FatalError) Error() string { return fmt.Sprintf("locator: fatal status %d", e.StatusCode) }

// RetryableError signals a 429 without the "Limit Exceeded" body: retry at
// a fixed delay until success or the caller's context deadline.
type RetryableError struct{ StatusCode int }

func (e *RetryableError) Error() string {
	return fmt.Sprintf("locator: retryable status %d", e.StatusCode)
}

// Result is the locality service's resolved identifiers for one coordinate,
// or nil fields for any tier it could not resolve.
type Result struct {
	LocalityID               *int64
	AdministrativeDivisionID *int64
	CountryID                *int64
}

// Client resolves a coordinate+city into locality identifiers via the
// external HTTP service. A nil *Result with a nil error means "200 with an
// empty body": the caller skips the entity unconditionally.
type Client interface {
	Lookup(ctx context.Context, coord model.Coordinate, city string) (*Result, error)
}

// RetryDelay is the fixed delay between 429 retries.
const RetryDelay = 100 * time.Millisecond

// Locator drives the final enrichment step: read the winning candidate,
// call the locality service (retrying per its response contract), and
// publish the enriched record.
type Locator struct {
	Store  candidatestore.Store
	Client Client
	Output queue.Stream[envelope.CandidateGeoData]
}

// New builds a Locator.
func New(store candidatestore.Store, client Client, output queue.Stream[envelope.CandidateGeoData]) *Locator {
	return &Locator{Store: store, Client: client, Output: output}
}

// Locate processes one entity whose transfer registration just expired: it
// looks up the current winner, skips entities with no winner or a score
// below MinWinnerScore, and otherwise resolves and publishes locality data.
func (l *Locator) Locate(ctx context.Context, key model.EntityKey, environment string) error {
	rows, err := l.Store.GetAllByEntity(ctx, key)
	if err != nil {
		return err
	}

	winner, ok := findWinner(rows, model.ConsolidatedProvider(environment))
	if !ok || winner.Score < MinWinnerScore {
		zap.L().Info("locator: no eligible winner, skipping",
			zap.String("entity", key.Composite()), zap.String("status", "SKIP"))
		return nil
	}

	coord, err := winner.Coordinate()
	if err != nil {
		return eris.Wrapf(err, "locator: winner coordinate for %s", key.Composite())
	}

	result, err := l.lookupWithRetry(ctx, coord, winner.City)
	if err != nil {
		switch err.(type) {
		case *LimitExceededError:
			zap.L().Warn("locator: limit exceeded, aborting task",
				zap.String("entity", key.Composite()), zap.String("status", "QUOTA EXHAUSTED"))
			return nil
		case *FatalError:
			zap.L().Error("locator: fatal error from locality service",
				zap.String("entity", key.Composite()), zap.Error(err))
			return err
		default:
			return err
		}
	}

	if result == nil {
		zap.L().Info("locator: locality service returned nothing, skipping",
			zap.String("entity", key.Composite()), zap.String("status", "NO RESULTS"))
		return nil
	}

	record := toGeoData(key, coord, result)

	zap.L().Info("locator: resolved locality",
		zap.String("entity", key.Composite()), zap.String("status", "OK"))
	return l.Output.Publish(ctx, []envelope.CandidateGeoData{record})
}

// lookupWithRetry calls Client.Lookup, retrying a RetryableError at a fixed
// delay until success or ctx is done.
func (l *Locator) lookupWithRetry(ctx context.Context, coord model.Coordinate, city string) (*Result, error) {
	for {
		result, err := l.Client.Lookup(ctx, coord, city)
		if err == nil {
			return result, nil
		}

		if _, ok := err.(*RetryableError); !ok {
			return nil, err
		}

		timer := time.NewTimer(RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// findWinner returns the entity's current consolidated-provider row, if any.
func findWinner(rows []model.Candidate, provider string) (model.Candidate, bool) {
	for _, c := range rows {
		if c.Provider == provider {
			return c, true
		}
	}
	return model.Candidate{}, false
}

// toGeoData assembles the published record from a winner's coordinate and
// the locality service's resolved identifiers, attaching the fixed
// namespace tag to every non-null id field.
func toGeoData(key model.EntityKey, coord model.Coordinate, result *Result) envelope.CandidateGeoData {
	rec := envelope.CandidateGeoData{
		Key:           key,
		Longitude:     coord.Longitude,
		Latitude:      coord.Latitude,
		ValidGeoPoint: coord.Valid(),
	}
	rec.LocalityID = result.LocalityID
	rec.LocalityNs = nsOrNil(result.LocalityID)
	rec.AdministrativeDivisionID = result.AdministrativeDivisionID
	rec.AdministrativeDivisionNs = nsOrNil(result.AdministrativeDivisionID)
	rec.CountryID = result.CountryID
	rec.CountryNs = nsOrNil(result.CountryID)
	return rec
}

func nsOrNil(id *int64) *int64 {
	if id == nil {
		return nil
	}
	ns := NsTag
	return &ns
}

// HTTPClient implements Client against the real locality HTTP service,
// signing every request with AWS SigV4 (sigv4.go) and tripping a circuit
// breaker after repeated failures so a dead locality service doesn't stall
// every in-flight locator task behind the 429 retry loop.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Signer  signer
	Breaker *resilience.CircuitBreaker
}

// NewHTTPClient builds an HTTPClient for baseURL, signing requests for the
// given AWS credentials/region and attaching apiKey as the API Gateway usage
// plan key. breakerFailureThreshold/breakerResetTimeoutSec configure the
// circuit breaker guarding doLookup; <= 0 falls back to
// resilience.DefaultCircuitBreakerConfig's values.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client, accessKeyID, secretAccessKey, sessionToken, region string, breakerFailureThreshold, breakerResetTimeoutSec int) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    httpClient,
		Signer: signer{
			AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey,
			SessionToken: sessionToken, Region: region, Service: "execute-api",
		},
		Breaker: resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig(breakerFailureThreshold, breakerResetTimeoutSec),
		),
	}
}

type localityResponseRow struct {
	LocalityID               *int64 `json:"locality_id"`
	AdministrativeDivisionID *int64 `json:"administrative_division_id"`
	CountryID                *int64 `json:"country_id"`
}

// Lookup implements Client by issuing a SigV4-signed GET and mapping the
// response: 200 with an empty array is a no-op (nil, nil);
// 200 with at least one row takes the first; 400 logs a warning and also
// returns (nil, nil), so the caller skips the entity; 429 with
// body "Limit Exceeded" aborts; any other 429 is retryable; 403 is fatal.
func (c *HTTPClient) Lookup(ctx context.Context, coord model.Coordinate, city string) (*Result, error) {
	return resilience.ExecuteVal(ctx, c.Breaker, func(ctx context.Context) (*Result, error) {
		return c.doLookup(ctx, coord, city)
	})
}

func (c *HTTPClient) doLookup(ctx context.Context, coord model.Coordinate, city string) (*Result, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "locator: parse base url")
	}
	q := u.Query()
	q.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("city", city)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "locator: build request")
	}
	req.Header.Set("Host", u.Host)
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	c.Signer.Sign(req, time.Now())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "locator: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		var rows []localityResponseRow
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			return nil, eris.Wrap(err, "locator: decode response")
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &Result{
			LocalityID:               rows[0].LocalityID,
			AdministrativeDivisionID: rows[0].AdministrativeDivisionID,
			CountryID:                rows[0].CountryID,
		}, nil
	case http.StatusBadRequest:
		zap.L().Warn("locator: locality service rejected request", zap.String("status", "SKIP"))
		return nil, nil
	case http.StatusTooManyRequests:
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Message == "Limit Exceeded" {
			return nil, &LimitExceededError{}
		}
		return nil, &RetryableError{StatusCode: resp.StatusCode}
	case http.StatusForbidden:
		return nil, &FatalError{StatusCode: resp.StatusCode}
	default:
		return nil, eris.Errorf("locator: unexpected status %d", resp.StatusCode)
	}
}
