package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const bingLocationsURL = "https://dev.virtualearth.net/REST/v1/Locations"

type bingTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type bingResponse struct {
	StatusCode   int `json:"statusCode"`
	ResourceSets []struct {
		Resources []struct {
			Point struct {
				Coordinates []float64 `json:"coordinates"` // [lat, lon]
			} `json:"point"`
			Confidence string `json:"confidence"`
			Address    struct {
				AddressLine    string `json:"addressLine"`
				Locality       string `json:"locality"`
				AdminDistrict  string `json:"adminDistrict"`
				PostalCode     string `json:"postalCode"`
				CountryRegion  string `json:"countryRegion"`
			} `json:"address"`
		} `json:"resources"`
	} `json:"resourceSets"`
}

func (t *bingTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"query": {composeOneLine(projected)},
		"key":   {key},
	}
	req, err := http.NewRequest(http.MethodGet, bingLocationsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderBing, Cause: err}
	}

	var resp bingResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderBing, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderBing}
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return nil, &InvalidRequestError{Provider: model.ProviderBing}
	default:
		if err := defaultStatusMapping(model.ProviderBing, status); err != nil {
			return nil, err
		}
	}

	var results []Result
	for _, rs := range resp.ResourceSets {
		for _, r := range rs.Resources {
			if len(r.Point.Coordinates) != 2 {
				continue
			}
			results = append(results, Result{
				Latitude:   r.Point.Coordinates[0],
				Longitude:  r.Point.Coordinates[1],
				Confidence: r.Confidence,
				Raw: map[string]any{
					"street":       r.Address.AddressLine,
					"city":         r.Address.Locality,
					"region":       r.Address.AdminDistrict,
					"postal_code":  r.Address.PostalCode,
					"country":      r.Address.CountryRegion,
				},
			})
		}
	}
	if len(results) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderBing}
	}
	return results, nil
}

func (t *bingTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":      stringField(raw, "street"),
		"city":        stringField(raw, "city"),
		"region":      stringField(raw, "region"),
		"postal_code": stringField(raw, "postal_code"),
		"country":     stringField(raw, "country"),
	}
}

// NewBing builds the Bing Maps Locations API adapter.
func NewBing(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderBing,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"region", "postal_code", "country"},
		Transport:       &bingTransport{client: client, limiter: limiter},
	}
}
