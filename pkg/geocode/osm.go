package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const osmNominatimURL = "https://nominatim.openstreetmap.org/search"

// osmTransport implements Transport against the OSM Nominatim public search
// API. Nominatim has no API key; the vault-issued "key" is ignored and is
// present only so this adapter satisfies the same rotation/rate-limiting
// harness as the keyed providers.
type osmTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type osmResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Importance  float64 `json:"importance"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Suburb      string `json:"suburb"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (t *osmTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"q":              {composeOneLine(projected)},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"5"},
	}
	req, err := http.NewRequest(http.MethodGet, osmNominatimURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderOSM, Cause: err}
	}
	req.Header.Set("User-Agent", "geolocator/1.0")

	var resp []osmResult
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderOSM, Cause: err}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderOSM}
	case http.StatusBadRequest:
		return nil, &InvalidRequestError{Provider: model.ProviderOSM}
	default:
		if err := defaultStatusMapping(model.ProviderOSM, status); err != nil {
			return nil, err
		}
	}

	if len(resp) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderOSM}
	}

	results := make([]Result, 0, len(resp))
	for _, r := range resp {
		lat, lon := parseFloatOr(r.Lat, 0), parseFloatOr(r.Lon, 0)
		city := r.Address.City
		if city == "" {
			city = r.Address.Town
		}
		results = append(results, Result{
			Longitude:  lon,
			Latitude:   lat,
			Confidence: formatScore(r.Importance),
			Raw: map[string]any{
				"street":       r.Address.Road,
				"house_number": r.Address.HouseNumber,
				"city":         city,
				"district":     r.Address.Suburb,
				"region":       r.Address.State,
				"postal_code":  r.Address.Postcode,
				"country":      r.Address.Country,
				"country_code": r.Address.CountryCode,
			},
		})
	}
	return results, nil
}

func (t *osmTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":       stringField(raw, "street"),
		"house_number": stringField(raw, "house_number"),
		"city":         stringField(raw, "city"),
		"district":     stringField(raw, "district"),
		"region":       stringField(raw, "region"),
		"postal_code":  stringField(raw, "postal_code"),
		"country":      stringField(raw, "country"),
		"country_code": stringField(raw, "country_code"),
	}
}

// NewOSM builds the OSM Nominatim adapter.
func NewOSM(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderOSM,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"country_code", "region", "postal_code", "district"},
		Transport:       &osmTransport{client: client, limiter: limiter},
	}
}
