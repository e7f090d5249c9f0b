// Package router validates and classifies inbound feed records, normalises
// their country field, registers the entity in the transfer table, and
// either writes a trusted winner straight through or fans out one geocoder
// task per configured provider.
package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/countrycode"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/transfer"
)

// DefaultProviders is the provider fan-out list used when no configuration
// overrides it.
var DefaultProviders = []string{
	model.ProviderGoogle, model.ProviderOSM, model.ProviderArcGIS, model.ProviderTomTom,
}

// Router classifies and routes inbound feed records into candidate store
// writes and geocoder tasks.
type Router struct {
	Store     candidatestore.Store
	Transfer  transfer.Store
	Tasks     queue.Queue[envelope.GeocoderTask]
	Countries *countrycode.Mapper
	Providers []string
	// Environment names the deployment (dev/test/prod); used to build the
	// consolidated_<env> provider name for trusted rows.
	Environment string
}

// New builds a Router. providers defaults to DefaultProviders when nil.
func New(store candidatestore.Store, xfer transfer.Store, tasks queue.Queue[envelope.GeocoderTask], countries *countrycode.Mapper, environment string, providers []string) *Router {
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	return &Router{
		Store: store, Transfer: xfer, Tasks: tasks, Countries: countries,
		Environment: environment, Providers: providers,
	}
}

// Route processes one decoded feed record end to end: normalise its country
// code, register it in the transfer table, and either write a trusted
// winner or persist the feed's own guess and enqueue geocoder tasks.
func (r *Router) Route(ctx context.Context, feed envelope.Feed) error {
	feed.Address.CountryCode = r.normalizeCountry(feed.Address)

	if err := r.Transfer.Register(ctx, feed.Key, transfer.DefaultTTL); err != nil {
		return err
	}

	if feed.IsValidGeocode {
		return r.routeTrusted(ctx, feed)
	}
	return r.routeNeedsGeocoding(ctx, feed)
}

// normalizeCountry resolves the feed's free-text country field down to an
// ISO-3166-2 code. A feed that already carries a valid code is left
// unchanged; CountryCode always wins over a bare Country field when both
// already resolve to the same thing.
func (r *Router) normalizeCountry(addr model.Address) string {
	if r.Countries == nil {
		return addr.CountryCode
	}
	if addr.CountryCode != "" && r.Countries.IsValidCountryCode(addr.CountryCode) {
		return addr.CountryCode
	}
	if addr.Country != "" {
		return r.Countries.Resolve(addr.Country)
	}
	return r.Countries.Resolve(addr.CountryCode)
}

// routeTrusted writes the feed's own coordinate straight through as the
// winner, skipping the geocoder stage entirely.
func (r *Router) routeTrusted(ctx context.Context, feed envelope.Feed) error {
	guess := feed.Guess
	if guess == nil {
		guess = &model.Coordinate{}
	}
	winner := model.NewCandidate(feed.Key, model.ConsolidatedProvider(r.Environment), *guess)
	winner.Score = 1.0
	winner.City = feed.Address.City
	winner.CountryCode = feed.Address.CountryCode

	zap.L().Info("router: routed trusted candidate",
		zap.String("entity", feed.Key.Composite()), zap.String("status", "OK"))
	return r.Store.Upsert(ctx, winner)
}

// routeNeedsGeocoding persists the feed's own guess as a trivago row (never
// selected by the geocoder ruleset) and enqueues one geocoder task per
// configured provider.
func (r *Router) routeNeedsGeocoding(ctx context.Context, feed envelope.Feed) error {
	trivagoCoord := model.Coordinate{}
	if feed.Guess != nil {
		trivagoCoord = *feed.Guess
	}
	row := model.NewCandidate(feed.Key, model.ProviderTrivago, trivagoCoord)
	if feed.Guess == nil {
		// A feed with no coordinate of its own must not leave a (0,0) pair
		// behind: the item fallback treats any stored pair as selectable.
		row.Longitude, row.Latitude = "", ""
	}
	row.City = feed.Address.City
	row.CountryCode = feed.Address.CountryCode
	row.Meta = model.Meta{Address: feed.Address.Fields()}
	if err := r.Store.Upsert(ctx, row); err != nil {
		return err
	}

	taskAddr := feed.Address
	taskAddr.Guess = feed.Guess
	tasks := make([]envelope.GeocoderTask, 0, len(r.Providers))
	for _, provider := range r.Providers {
		tasks = append(tasks, envelope.GeocoderTask{
			Key:      feed.Key,
			Provider: provider,
			Address:  taskAddr,
		})
	}

	zap.L().Info("router: enqueued geocoder tasks",
		zap.String("entity", feed.Key.Composite()), zap.Int("providers", len(r.Providers)), zap.String("status", "OK"))
	return r.Tasks.Send(ctx, tasks)
}
