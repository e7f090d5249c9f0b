package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// formatScore renders a provider's numeric confidence/score field as the
// opaque string the Candidate model stores it as.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// doJSON issues req against client (rate-limited first) and decodes a JSON
// body into target. It returns the HTTP status code alongside any transport
// error so callers can apply their own status→taxonomy mapping.
func doJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, req *http.Request, target any) (int, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return 0, eris.Wrap(err, "geocode: rate limiter wait")
		}
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, eris.Wrap(err, "geocode: read response body")
	}

	if len(body) > 0 && target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return resp.StatusCode, eris.Wrap(err, "geocode: parse response body")
		}
	}

	return resp.StatusCode, nil
}

// defaultStatusMapping maps an HTTP status code to the default taxonomy
// used when a provider has no documented status code of its own for it:
// empty success is handled by the caller as NoResultsFoundError, other
// non-success is FailedRequestError.
func defaultStatusMapping(provider string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider}
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &InvalidRequestError{Provider: provider, Cause: eris.Errorf("status %d", status)}
	case status >= 500:
		return &FailedRequestError{Provider: provider, Cause: eris.Errorf("status %d", status)}
	case status >= 400:
		return &FailedRequestError{Provider: provider, Cause: eris.Errorf("status %d", status)}
	default:
		return nil
	}
}

// stringOr returns v if it's a non-empty string, else fallback.
func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// parseFloatOr parses s as a float64, returning fallback on any error. Used
// for providers (Nominatim) that return coordinates as JSON strings.
func parseFloatOr(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
