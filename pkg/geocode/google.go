package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleTransport implements Transport against the Google Geocoding API.
// Google's quota does not distinguish per-second throttling from daily
// exhaustion (both surface as OVER_QUERY_LIMIT), so the dispatcher is told
// to re-raise a final rate-limit failure as QuotaExhaustedError
// (QuotaOnThrottle=true), and the quota reset epoch is the next Pacific
// midnight rather than "one hour from now".
type googleTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type googleAddressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string                   `json:"formatted_address"`
	AddressComponents []googleAddressComponent `json:"address_components"`
}

type googleResponse struct {
	Status  string         `json:"status"`
	Results []googleResult `json:"results"`
}

func (t *googleTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"address": {composeOneLine(projected)},
		"key":     {key},
	}
	if cc := projected["country_code"]; cc != "" {
		params.Set("components", "country:"+cc)
	}

	req, err := http.NewRequest(http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGoogle, Cause: err}
	}

	var resp googleResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderGoogle, Cause: err}
	}

	switch resp.Status {
	case "OK":
		// fall through
	case "ZERO_RESULTS":
		return nil, &NoResultsFoundError{Provider: model.ProviderGoogle}
	case "OVER_QUERY_LIMIT":
		return nil, &RateLimitError{Provider: model.ProviderGoogle}
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, &InvalidRequestError{Provider: model.ProviderGoogle}
	default:
		if err := defaultStatusMapping(model.ProviderGoogle, status); err != nil {
			return nil, err
		}
		return nil, &FailedRequestError{Provider: model.ProviderGoogle}
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		raw := map[string]any{"components": r.AddressComponents, "formatted_address": r.FormattedAddress}
		results = append(results, Result{
			Longitude: r.Geometry.Location.Lng,
			Latitude:  r.Geometry.Location.Lat,
			Accuracy:  r.Geometry.LocationType,
			Quality:   addressComponentType(r.AddressComponents, "political"),
			Raw:       raw,
		})
	}
	return results, nil
}

func (t *googleTransport) ParseReturnedAddress(raw map[string]any) Address {
	out := Address{}
	components, _ := raw["components"].([]googleAddressComponent)
	for _, c := range components {
		for _, typ := range c.Types {
			switch typ {
			case "route":
				out["street"] = c.LongName
			case "street_number":
				out["house_number"] = c.LongName
			case "locality":
				out["city"] = c.LongName
			case "postal_code":
				out["postal_code"] = c.LongName
			case "administrative_area_level_1":
				out["region"] = c.LongName
			case "sublocality", "neighborhood":
				out["district"] = c.LongName
			case "country":
				out["country"] = c.LongName
			}
		}
	}
	return out
}

func addressComponentType(components []googleAddressComponent, typ string) string {
	for _, c := range components {
		for _, t := range c.Types {
			if t == typ {
				return c.LongName
			}
		}
	}
	return ""
}

// composeOneLine joins the projected address fields into Google's
// free-text "address" parameter, in a stable field order.
func composeOneLine(projected Address) string {
	order := []string{"house_number", "street", "district", "city", "region", "postal_code", "country"}
	var parts []string
	for _, f := range order {
		if v := projected[f]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// NewGoogle builds the Google Geocoding API adapter.
func NewGoogle(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:    model.ProviderGoogle,
		ProviderVersion: "1",
		TTLSeconds:      86400,
		Cacheable:       true,
		Required:        []string{"street", "city", "country"},
		Priority:        []string{"country_code", "region", "postal_code", "district"},
		QuotaOnThrottle: true,
		QuotaResetEpochFn: func(now time.Time) time.Time {
			return nextMidnightPacific(now)
		},
		Transport: &googleTransport{client: client, limiter: limiter},
	}
}

// nextMidnightPacific returns the next occurrence of 00:00
// America/Los_Angeles after now, the instant the Google family resets its
// daily quota.
func nextMidnightPacific(now time.Time) time.Time {
	return nextMidnightIn(now, "America/Los_Angeles")
}

// nextMidnightIn returns the next local midnight after now in the named
// zone, falling back to UTC when the zone database is unavailable.
func nextMidnightIn(now time.Time, zone string) time.Time {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
