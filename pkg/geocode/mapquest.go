package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const mapquestGeocodeURL = "https://www.mapquestapi.com/geocoding/v1/address"

type mapquestTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type mapquestResponse struct {
	Info struct {
		Statuscode int `json:"statuscode"`
	} `json:"info"`
	Results []struct {
		Locations []struct {
			LatLng struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"latLng"`
			Street      string `json:"street"`
			AdminArea5  string `json:"adminArea5"` // city
			AdminArea4  string `json:"adminArea4"` // county/district
			AdminArea3  string `json:"adminArea3"` // state
			AdminArea1  string `json:"adminArea1"` // country
			PostalCode  string `json:"postalCode"`
			GeocodeQuality string `json:"geocodeQuality"`
		} `json:"locations"`
	} `json:"results"`
}

func (t *mapquestTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"key":      {key},
		"location": {composeOneLine(projected)},
	}
	req, err := http.NewRequest(http.MethodGet, mapquestGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderMapQuest, Cause: err}
	}

	var resp mapquestResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderMapQuest, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderMapQuest}
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return nil, &InvalidRequestError{Provider: model.ProviderMapQuest}
	default:
		if err := defaultStatusMapping(model.ProviderMapQuest, status); err != nil {
			return nil, err
		}
	}

	if resp.Info.Statuscode != 0 {
		return nil, &FailedRequestError{Provider: model.ProviderMapQuest}
	}

	var results []Result
	for _, r := range resp.Results {
		for _, loc := range r.Locations {
			results = append(results, Result{
				Longitude:  loc.LatLng.Lng,
				Latitude:   loc.LatLng.Lat,
				Quality:    loc.GeocodeQuality,
				Raw: map[string]any{
					"street":      loc.Street,
					"city":        loc.AdminArea5,
					"district":    loc.AdminArea4,
					"region":      loc.AdminArea3,
					"country":     loc.AdminArea1,
					"postal_code": loc.PostalCode,
				},
			})
		}
	}
	if len(results) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderMapQuest}
	}
	return results, nil
}

func (t *mapquestTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":      stringField(raw, "street"),
		"city":        stringField(raw, "city"),
		"district":    stringField(raw, "district"),
		"region":      stringField(raw, "region"),
		"country":     stringField(raw, "country"),
		"postal_code": stringField(raw, "postal_code"),
	}
}

// NewMapQuest builds the MapQuest Geocoding API adapter.
func NewMapQuest(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderMapQuest,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"country_code", "region", "postal_code", "district"},
		Transport:       &mapquestTransport{client: client, limiter: limiter},
	}
}
