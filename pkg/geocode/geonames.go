package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const geonamesSearchURL = "http://api.geonames.org/searchJSON"

type geonamesTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type geonamesResponse struct {
	Geonames []struct {
		Lat         string `json:"lat"`
		Lng         string `json:"lng"`
		Name        string `json:"name"`
		CountryCode string `json:"countryCode"`
		AdminName1  string `json:"adminName1"`
		Fcode       string `json:"fcode"`
	} `json:"geonames"`
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

func (t *geonamesTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"q":        {composeOneLine(projected)},
		"username": {key},
		"maxRows":  {"5"},
	}
	req, err := http.NewRequest(http.MethodGet, geonamesSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGeonames, Cause: err}
	}

	var resp geonamesResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGeonames, Cause: err}
	}
	if status != http.StatusOK {
		if err := defaultStatusMapping(model.ProviderGeonames, status); err != nil {
			return nil, err
		}
	}

	if resp.Status != nil {
		switch resp.Status.Value {
		case 18, 19, 20:
			return nil, &RateLimitError{Provider: model.ProviderGeonames}
		case 10, 11, 12:
			return nil, &InvalidRequestError{Provider: model.ProviderGeonames}
		default:
			return nil, &FailedRequestError{Provider: model.ProviderGeonames}
		}
	}

	if len(resp.Geonames) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderGeonames}
	}

	results := make([]Result, 0, len(resp.Geonames))
	for _, g := range resp.Geonames {
		results = append(results, Result{
			Longitude: parseFloatOr(g.Lng, 0),
			Latitude:  parseFloatOr(g.Lat, 0),
			Quality:   g.Fcode,
			Raw: map[string]any{
				"city":         g.Name,
				"region":       g.AdminName1,
				"country_code": g.CountryCode,
			},
		})
	}
	return results, nil
}

func (t *geonamesTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"city":         stringField(raw, "city"),
		"region":       stringField(raw, "region"),
		"country_code": stringField(raw, "country_code"),
	}
}

// NewGeonames builds the GeoNames searchJSON adapter. GeoNames resolves to
// place-level (city/region) granularity rather than street addresses, so it
// is only usable as a coarse fallback ahead of the city fallback stage.
func NewGeonames(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderGeonames,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"city"},
		Priority:        []string{"country_code", "region"},
		Transport:       &geonamesTransport{client: client, limiter: limiter},
	}
}
