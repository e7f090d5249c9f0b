// Package model defines the shared domain types passed between the router,
// dispatcher, consolidator and locator: a candidate geocode row, the entity
// key it belongs to, and the address shape providers geocode against.
package model

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
)

// Provider name constants. The eleven external geocoding APIs plus the
// internal pseudo-providers that also produce candidate rows for an entity.
const (
	ProviderGoogle       = "google"
	ProviderGooglePlaces = "google_places"
	ProviderBing         = "bing"
	ProviderHere         = "here"
	ProviderTomTom       = "tomtom"
	ProviderMapbox       = "mapbox"
	ProviderMapQuest     = "mapquest"
	ProviderOSM          = "osm"
	ProviderArcGIS       = "arcgis"
	ProviderGeonames     = "geonames"
	ProviderBaidu        = "baidu"

	// ProviderTrivago is the entity's own (pre-existing) coordinate, supplied
	// by the feed and never selected by a ruleset — only by the item fallback.
	ProviderTrivago = "trivago"

	// ProviderCityPolygons marks a candidate synthesized by the city fallback.
	ProviderCityPolygons = "city_polygons"

	// ConsolidatedProviderPrefix is the prefix for the single, per-environment
	// winning row written by the consolidator. The unqualified name is
	// ConsolidatedProvider(env); the write path and the "previous winner"
	// read path must agree on this prefix or the monotonic-score guard
	// never fires.
	ConsolidatedProviderPrefix = "consolidated_"
)

// ConsolidatedProvider returns the provider name the consolidator uses for
// both writing its winning row and looking up the previous one.
func ConsolidatedProvider(environment string) string {
	return ConsolidatedProviderPrefix + environment
}

// ExternalProviders lists the geocoding APIs the dispatcher can fan a task
// out to. Order has no significance here; ruleset rank determines winners.
var ExternalProviders = []string{
	ProviderGoogle, ProviderGooglePlaces, ProviderBing, ProviderHere, ProviderTomTom,
	ProviderMapbox, ProviderMapQuest, ProviderOSM, ProviderArcGIS, ProviderGeonames, ProviderBaidu,
}

// EntityKey identifies the thing being geocoded: an accommodation, a point
// of interest, or a destination, each distinguished by EntityType.
type EntityKey struct {
	EntityID   int64  `json:"entity_id"`
	EntityType string `json:"entity_type"`
}

// Composite returns the "{entity_type}:{entity_id}" composite key used as
// the candidate store's partition/hash key.
func (k EntityKey) Composite() string {
	return fmt.Sprintf("%s:%d", k.EntityType, k.EntityID)
}

func (k EntityKey) String() string { return k.Composite() }

// Address is the set of fields a geocoder can be asked to resolve. Empty
// fields are considered absent, matching the feed's "null fields are
// omitted" convention.
type Address struct {
	Name       string `json:"name,omitempty"`
	Street     string `json:"street,omitempty"`
	District   string `json:"district,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`

	// Guess, if present, is the entity's own declared coordinate — used only
	// to score returned results by proximity, never sent to the provider.
	Guess *Coordinate `json:"guess,omitempty"`
}

// Fields returns the non-empty address fields as a generic map, keyed by
// field name, mirroring the feed's dict-of-present-fields representation.
func (a Address) Fields() map[string]string {
	out := make(map[string]string, 7)
	add := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	add("name", a.Name)
	add("street", a.Street)
	add("district", a.District)
	add("postal_code", a.PostalCode)
	add("city", a.City)
	add("region", a.Region)
	add("country", a.Country)
	add("country_code", a.CountryCode)
	return out
}

// Coordinate is a WGS-84 longitude/latitude pair.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid reports whether the coordinate falls within WGS-84 bounds.
func (c Coordinate) Valid() bool {
	return c.Longitude >= -180 && c.Longitude <= 180 && c.Latitude >= -90 && c.Latitude <= 90
}

// Meta carries the free-form, provider-specific bookkeeping a candidate row
// accumulates: the address projection sent to the provider, the parsed
// address the provider returned, which fields were supplied vs. shed during
// iterative field-shedding (4.C), and the feed's own guess+distance pair
// when one was available for proximity scoring.
type Meta struct {
	Address    map[string]string `json:"address,omitempty"`
	AddressOut map[string]string `json:"address_out,omitempty"`
	Supplied   []string          `json:"supplied,omitempty"`
	Rejected   []string          `json:"rejected,omitempty"`
	Guess      *Coordinate       `json:"guess,omitempty"`
	Distance   *float64          `json:"distance,omitempty"`
}

// Candidate is a single geocode row for an entity: one provider's opinion of
// where the entity sits, optionally carrying a consolidation score.
type Candidate struct {
	Entity      string  `json:"entity"`
	EntityID    int64   `json:"entity_id"`
	EntityType  string  `json:"entity_type"`
	BatchID     string  `json:"batch_id,omitempty"`
	Provider    string  `json:"provider"`
	Longitude   string  `json:"longitude"`
	Latitude    string  `json:"latitude"`
	Accuracy    string  `json:"accuracy,omitempty"`
	Confidence  string  `json:"confidence,omitempty"`
	Quality     string  `json:"quality,omitempty"`
	Score       float64 `json:"score"`
	City        string  `json:"city,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Meta        Meta    `json:"meta,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`
}

// NewCandidate builds a Candidate row for the given entity key, formatting
// the coordinate as the exact-decimal strings the store requires.
func NewCandidate(key EntityKey, provider string, coord Coordinate) Candidate {
	return Candidate{
		Entity:     key.Composite(),
		EntityID:   key.EntityID,
		EntityType: key.EntityType,
		Provider:   provider,
		Longitude:  formatCoord(coord.Longitude),
		Latitude:   formatCoord(coord.Latitude),
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Coordinate parses the Candidate's stored decimal-string coordinate.
func (c Candidate) Coordinate() (Coordinate, error) {
	lon, err := strconv.ParseFloat(c.Longitude, 64)
	if err != nil {
		return Coordinate{}, eris.Wrapf(err, "model: parse longitude %q", c.Longitude)
	}
	lat, err := strconv.ParseFloat(c.Latitude, 64)
	if err != nil {
		return Coordinate{}, eris.Wrapf(err, "model: parse latitude %q", c.Latitude)
	}
	return Coordinate{Longitude: lon, Latitude: lat}, nil
}

// Key returns the EntityKey this candidate belongs to.
func (c Candidate) Key() EntityKey {
	return EntityKey{EntityID: c.EntityID, EntityType: c.EntityType}
}

// HasCoordinate reports whether the candidate carries a non-empty, valid
// WGS-84 coordinate pair.
func (c Candidate) HasCoordinate() bool {
	if c.Longitude == "" || c.Latitude == "" {
		return false
	}
	coord, err := c.Coordinate()
	if err != nil {
		return false
	}
	return coord.Valid()
}

// Field looks up one of the ruleset-visible fields on the candidate by name:
// the filter/rule fields the ruleset evaluator compares against
// (accuracy, confidence, quality, city, country_code, provider). The
// coordinate is not exposed through Field. Returns ok=false for an
// unrecognised name or an empty value.
func (c Candidate) Field(name string) (string, bool) {
	var v string
	switch name {
	case "accuracy":
		v = c.Accuracy
	case "confidence":
		v = c.Confidence
	case "quality":
		v = c.Quality
	case "city":
		v = c.City
	case "country_code":
		v = c.CountryCode
	case "provider":
		v = c.Provider
	default:
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// IsConsolidated reports whether provider carries the consolidated-row
// prefix, i.e. it is a previous winner rather than an external opinion.
func IsConsolidated(provider string) bool {
	if len(provider) < len(ConsolidatedProviderPrefix) {
		return false
	}
	return provider[:len(ConsolidatedProviderPrefix)] == ConsolidatedProviderPrefix
}
