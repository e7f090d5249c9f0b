package geocode

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/model"
)

// NewRegistry constructs every known Provider keyed by its model.Provider*
// name, sharing one http.Client across adapters and giving each its own
// rate limiter. The dispatcher looks providers up here by name rather than
// switching on a hardcoded list, so enabling a provider is a config change.
func NewRegistry(client *http.Client, limiters map[string]*rate.Limiter) map[string]Provider {
	limiterFor := func(name string) *rate.Limiter {
		if l, ok := limiters[name]; ok {
			return l
		}
		return rate.NewLimiter(rate.Limit(5), 1)
	}

	return map[string]Provider{
		model.ProviderGoogle:       NewGoogle(client, limiterFor(model.ProviderGoogle)),
		model.ProviderGooglePlaces: NewGooglePlaces(client, limiterFor(model.ProviderGooglePlaces)),
		model.ProviderBing:         NewBing(client, limiterFor(model.ProviderBing)),
		model.ProviderHere:         NewHere(client, limiterFor(model.ProviderHere)),
		model.ProviderTomTom:       NewTomTom(client, limiterFor(model.ProviderTomTom)),
		model.ProviderMapbox:       NewMapbox(client, limiterFor(model.ProviderMapbox)),
		model.ProviderMapQuest:     NewMapQuest(client, limiterFor(model.ProviderMapQuest)),
		model.ProviderOSM:          NewOSM(client, limiterFor(model.ProviderOSM)),
		model.ProviderArcGIS:       NewArcGIS(client, limiterFor(model.ProviderArcGIS)),
		model.ProviderGeonames:     NewGeonames(client, limiterFor(model.ProviderGeonames)),
		model.ProviderBaidu:        NewBaidu(client, limiterFor(model.ProviderBaidu)),
	}
}
