package geocode

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const googlePlacesURL = "https://maps.googleapis.com/maps/api/place/findplacefromtext/json"

// googlePlacesTransport implements Transport against the Google Places
// "Find Place From Text" API — used when the feed's address reads more
// like a point-of-interest name than a structured street address. Shares
// Google's quota semantics (OVER_QUERY_LIMIT is ambiguous between
// per-second throttling and daily exhaustion).
type googlePlacesTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type googlePlacesResponse struct {
	Status      string `json:"status"`
	Candidates  []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"candidates"`
}

func (t *googlePlacesTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	input := projected["name"]
	if input == "" {
		input = composeOneLine(projected)
	}

	params := url.Values{
		"input":     {input},
		"inputtype": {"textquery"},
		"fields":    {"name,geometry,formatted_address"},
		"key":       {key},
	}

	req, err := http.NewRequest(http.MethodGet, googlePlacesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGooglePlaces, Cause: err}
	}

	var resp googlePlacesResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGooglePlaces, Cause: err}
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, &NoResultsFoundError{Provider: model.ProviderGooglePlaces}
	case "OVER_QUERY_LIMIT":
		return nil, &RateLimitError{Provider: model.ProviderGooglePlaces}
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, &InvalidRequestError{Provider: model.ProviderGooglePlaces}
	default:
		if err := defaultStatusMapping(model.ProviderGooglePlaces, status); err != nil {
			return nil, err
		}
		return nil, &FailedRequestError{Provider: model.ProviderGooglePlaces}
	}

	results := make([]Result, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		results = append(results, Result{
			Longitude: c.Geometry.Location.Lng,
			Latitude:  c.Geometry.Location.Lat,
			Raw:       map[string]any{"formatted_address": c.FormattedAddress, "name": c.Name},
		})
	}
	return results, nil
}

func (t *googlePlacesTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{"street": stringField(raw, "formatted_address"), "name": stringField(raw, "name")}
}

// NewGooglePlaces builds the Google Places adapter.
func NewGooglePlaces(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:      model.ProviderGooglePlaces,
		ProviderVersion:   "1",
		TTLSeconds:        86400,
		Cacheable:         true,
		Required:          []string{"name"},
		Priority:          []string{"city", "region", "country"},
		QuotaOnThrottle:   true,
		QuotaResetEpochFn: func(now time.Time) time.Time { return nextMidnightPacific(now) },
		Transport:         &googlePlacesTransport{client: client, limiter: limiter},
	}
}
