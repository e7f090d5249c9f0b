package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const hereGeocodeURL = "https://geocode.search.hereapi.com/v1/geocode"

type hereTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type hereResponse struct {
	Items []struct {
		Position struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"position"`
		Address struct {
			Street     string `json:"street"`
			HouseNumber string `json:"houseNumber"`
			District   string `json:"district"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postalCode"`
			CountryName string `json:"countryName"`
		} `json:"address"`
		Scoring struct {
			QueryScore float64 `json:"queryScore"`
		} `json:"scoring"`
	} `json:"items"`
}

func (t *hereTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"q":      {composeOneLine(projected)},
		"apiKey": {key},
	}
	if cc := projected["country_code"]; cc != "" {
		params.Set("in", "countryCode:"+cc)
	}

	req, err := http.NewRequest(http.MethodGet, hereGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderHere, Cause: err}
	}

	var resp hereResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderHere, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderHere}
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, &InvalidRequestError{Provider: model.ProviderHere}
	default:
		if err := defaultStatusMapping(model.ProviderHere, status); err != nil {
			return nil, err
		}
	}

	if len(resp.Items) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderHere}
	}

	results := make([]Result, 0, len(resp.Items))
	for _, it := range resp.Items {
		results = append(results, Result{
			Longitude:  it.Position.Lng,
			Latitude:   it.Position.Lat,
			Confidence: formatScore(it.Scoring.QueryScore),
			Raw: map[string]any{
				"street":       it.Address.Street,
				"house_number": it.Address.HouseNumber,
				"district":     it.Address.District,
				"city":         it.Address.City,
				"region":       it.Address.State,
				"postal_code":  it.Address.PostalCode,
				"country":      it.Address.CountryName,
			},
		})
	}
	return results, nil
}

func (t *hereTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":       stringField(raw, "street"),
		"house_number": stringField(raw, "house_number"),
		"district":     stringField(raw, "district"),
		"city":         stringField(raw, "city"),
		"region":       stringField(raw, "region"),
		"postal_code":  stringField(raw, "postal_code"),
		"country":      stringField(raw, "country"),
	}
}

// NewHere builds the HERE Geocoding v7 adapter.
func NewHere(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderHere,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"country_code", "region", "postal_code", "district"},
		Transport:       &hereTransport{client: client, limiter: limiter},
	}
}
