package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const mapboxGeocodeURL = "https://api.mapbox.com/geocoding/v5/mapbox.places/"

type mapboxTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type mapboxResponse struct {
	Features []struct {
		PlaceName string    `json:"place_name"`
		Relevance float64   `json:"relevance"`
		Center    []float64 `json:"center"` // [lon, lat]
		Context   []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"context"`
	} `json:"features"`
}

func (t *mapboxTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	query := composeOneLine(projected)
	params := url.Values{"access_token": {key}, "limit": {"5"}}
	if cc := projected["country_code"]; cc != "" {
		params.Set("country", cc)
	}

	req, err := http.NewRequest(http.MethodGet, mapboxGeocodeURL+url.PathEscape(query)+".json?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderMapbox, Cause: err}
	}

	var resp mapboxResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderMapbox, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderMapbox}
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return nil, &InvalidRequestError{Provider: model.ProviderMapbox}
	default:
		if err := defaultStatusMapping(model.ProviderMapbox, status); err != nil {
			return nil, err
		}
	}

	if len(resp.Features) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderMapbox}
	}

	results := make([]Result, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Center) != 2 {
			continue
		}
		raw := map[string]any{"place_name": f.PlaceName}
		for _, c := range f.Context {
			switch {
			case hasPrefix(c.ID, "postcode"):
				raw["postal_code"] = c.Text
			case hasPrefix(c.ID, "place"):
				raw["city"] = c.Text
			case hasPrefix(c.ID, "region"):
				raw["region"] = c.Text
			case hasPrefix(c.ID, "district"):
				raw["district"] = c.Text
			case hasPrefix(c.ID, "country"):
				raw["country"] = c.Text
			}
		}
		results = append(results, Result{
			Longitude:  f.Center[0],
			Latitude:   f.Center[1],
			Confidence: formatScore(f.Relevance),
			Raw:        raw,
		})
	}
	if len(results) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderMapbox}
	}
	return results, nil
}

func (t *mapboxTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":      stringField(raw, "place_name"),
		"city":        stringField(raw, "city"),
		"district":    stringField(raw, "district"),
		"region":      stringField(raw, "region"),
		"postal_code": stringField(raw, "postal_code"),
		"country":     stringField(raw, "country"),
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// NewMapbox builds the Mapbox Geocoding API adapter.
func NewMapbox(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderMapbox,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"country_code", "region", "postal_code", "district"},
		Transport:       &mapboxTransport{client: client, limiter: limiter},
	}
}
