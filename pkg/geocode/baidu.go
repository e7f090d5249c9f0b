package geocode

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

const baiduGeocodeURL = "https://api.map.baidu.com/geocoding/v3/"

type baiduTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

type baiduResponse struct {
	Status int `json:"status"`
	Result struct {
		Location struct {
			Lng float64 `json:"lng"`
			Lat float64 `json:"lat"`
		} `json:"location"`
		Precise    int     `json:"precise"`
		Confidence float64 `json:"confidence"`
		Level      string  `json:"level"`
	} `json:"result"`
}

func (t *baiduTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	params := url.Values{
		"address": {composeOneLine(projected)},
		"ak":      {key},
		"output":  {"json"},
	}
	req, err := http.NewRequest(http.MethodGet, baiduGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderBaidu, Cause: err}
	}

	var resp baiduResponse
	status, err := doJSON(ctx, t.client, t.limiter, req, &resp)
	if err != nil {
		return nil, &FailedRequestError{Provider: model.ProviderBaidu, Cause: err}
	}
	if status != http.StatusOK {
		if err := defaultStatusMapping(model.ProviderBaidu, status); err != nil {
			return nil, err
		}
	}

	switch resp.Status {
	case 0:
	case 1, 2:
		return nil, &FailedRequestError{Provider: model.ProviderBaidu}
	case 4, 302:
		return nil, &RateLimitError{Provider: model.ProviderBaidu}
	case 5, 101, 200, 201, 202, 203, 210, 211, 220:
		return nil, &InvalidRequestError{Provider: model.ProviderBaidu}
	default:
		return nil, &NoResultsFoundError{Provider: model.ProviderBaidu}
	}

	return []Result{{
		Longitude:  resp.Result.Location.Lng,
		Latitude:   resp.Result.Location.Lat,
		Confidence: formatScore(resp.Result.Confidence),
		Quality:    resp.Result.Level,
		Raw:        map[string]any{"precise": resp.Result.Precise},
	}}, nil
}

func (t *baiduTransport) ParseReturnedAddress(raw map[string]any) Address {
	return Address{}
}

// NewBaidu builds the Baidu Maps geocoding adapter, used for addresses in
// mainland China where Baidu coverage exceeds the Western providers. Its
// daily quota resets at midnight Beijing time.
func NewBaidu(client *http.Client, limiter *rate.Limiter) Provider {
	return &Base{
		ProviderName:      model.ProviderBaidu,
		ProviderVersion:   "1",
		TTLSeconds:        86400,
		Cacheable:         true,
		Required:          []string{"street", "city"},
		Priority:          []string{"region", "country"},
		QuotaResetEpochFn: func(now time.Time) time.Time { return nextMidnightIn(now, "Asia/Shanghai") },
		Transport:         &baiduTransport{client: client, limiter: limiter},
	}
}
