package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const arcgisFindCandidatesURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"

type arcgisTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type arcgisResponse struct {
	Candidates []struct {
		Address  string  `json:"address"`
		Score    float64 `json:"score"`
		Location struct {
			X float64 `json:"x"` // lon
			Y float64 `json:"y"` // lat
		} `json:"location"`
		Attributes map[string]any `json:"attributes"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *arcgisTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"SingleLine": {composeOneLine(projected)},
		"f":          {"json"},
		"outFields":  {"*"},
		"token":      {key},
	}
	req, err := http.NewRequest(http.MethodGet, arcgisFindCandidatesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderArcGIS, Cause: err}
	}

	var resp arcgisResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderArcGIS, Cause: err}
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case 498, 499:
			return nil, &InvalidRequestError{Provider: model.ProviderArcGIS}
		case 429:
			return nil, &RateLimitError{Provider: model.ProviderArcGIS}
		default:
			return nil, &FailedRequestError{Provider: model.ProviderArcGIS}
		}
	}

	switch status {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: model.ProviderArcGIS}
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return nil, &InvalidRequestError{Provider: model.ProviderArcGIS}
	default:
		if err := defaultStatusMapping(model.ProviderArcGIS, status); err != nil {
			return nil, err
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, &NoResultsFoundError{Provider: model.ProviderArcGIS}
	}

	results := make([]Result, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		results = append(results, Result{
			Longitude:  c.Location.X,
			Latitude:   c.Location.Y,
			Confidence: formatScore(c.Score),
			Raw: map[string]any{
				"street":      stringOr(c.Attributes["Address"], ""),
				"city":        stringOr(c.Attributes["City"], ""),
				"region":      stringOr(c.Attributes["Region"], ""),
				"postal_code": stringOr(c.Attributes["Postal"], ""),
				"country":     stringOr(c.Attributes["Country"], ""),
			},
		})
	}
	return results, nil
}

func (t *arcgisTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{
		"street":      stringField(raw, "street"),
		"city":        stringField(raw, "city"),
		"region":      stringField(raw, "region"),
		"postal_code": stringField(raw, "postal_code"),
		"country":     stringField(raw, "country"),
	}
}

// NewArcGIS builds the Esri ArcGIS World Geocoding Service adapter.
func NewArcGIS(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderArcGIS,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city"},
		Priority:        []string{"country_code", "region", "postal_code"},
		Transport:       &arcgisTransport{client: client, limiter: limiter},
	}
}
