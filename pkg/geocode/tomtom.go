package geocode

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const tomtomGeocodeURL = "https://api.tomtom.com/search/2/geocode/"

type tomtomTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type tomtomResponse struct {
	Results []struct {
		Position struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"position"`
		Score   float64 `json:"score"`
		Address struct {
			StreetName       string `json:"streetName"`
			StreetNumber     string `json:"streetNumber"`
			MunicipalitySubdivision string `json:"municipalitySubdivision"`
			Municipality     string `json:"municipality"`
			CountrySubdivision string `json:"countrySubdivision"`
			PostalCode       string `json:"postalCode"`
			Country          string `json:"country"`
		} `json:"address"`
		MatchConfidence struct {
			Score float64 `json:"score"`
		} `json:"matchConfidence"`
		Type string `json:"type"` // e.g. "Point Address", "Street"
	} `json:"results"`
}

func (t *tomtomTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	query := composeOneLine(projected)
	params := url.Values{
		"key":          {key},
		"limit":        {"5"},
		"countrySet":   {projected["country_code"]},
	}

	req, err := http.NewRequest(http.MethodGet, tomtomGeocodeURL+url.PathEscape(query)+".json?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderTomTom, Cause: err}
	}

	var resp tomtomResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderTomTom, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderTomTom}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, &InvalidRequestError{Provider: model.ProviderTomTom}
	default:
		if err := defaultStatusMapping(model.ProviderTomTom, status); err != nil {
			return nil, err
		}
	}

	if len(resp.Results) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderTomTom}
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, Result{
			Longitude:  r.Position.Lon,
			Latitude:   r.Position.Lat,
			Confidence: formatScore(r.MatchConfidence.Score * 10),
			Quality:    r.Type,
			Raw: map[string]any{
				"street":       r.Address.StreetName,
				"house_number": r.Address.StreetNumber,
				"district":     r.Address.MunicipalitySubdivision,
				"city":         r.Address.Municipality,
				"region":       r.Address.CountrySubdivision,
				"postal_code":  r.Address.PostalCode,
				"country":      r.Address.Country,
			},
		})
	}
	return results, nil
}

func (t *tomtomTransport) ParseReturnedAddress(raw map[string]any) Address {
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

// NewTomTom builds the TomTom Search API geocode adapter. TomTom's daily
// request quota resets at midnight UTC.
func NewTomTom(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:      model.ProviderTomTom,
		ProviderVersion:   "1",
		TTLSeconds:        86400,
		Cacheable:         true,
		Required:          []string{"street", "city"},
		Priority:          []string{"country_code", "region", "postal_code", "district"},
		QuotaResetEpochFn: func(now time.Time) time.Time { return nextMidnightIn(now, "UTC") },
		Transport:         &tomtomTransport{client: client, limiter: limiter},
	}
}
