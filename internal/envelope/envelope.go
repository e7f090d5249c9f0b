// Package envelope defines the decoded Go shapes of the messages that flow
// between worker stages. The wire formats themselves (protobuf for the
// source feed, JSON for internal queues) belong to the upstream platform;
// this package represents only their post-decode form, the shape every
// worker actually operates on.
package envelope

import "github.com/trivago/geolocator/internal/model"

// Feed is one decoded source-feed record: an entity's self-reported
// address and coordinate, plus the flag that decides whether
// it routes straight to the consolidated output or through the geocoder
// dispatcher.
type Feed struct {
	Key            model.EntityKey
	Address        model.Address
	Guess          *model.Coordinate
	IsValidGeocode bool
}

// GeocoderTask is one unit of dispatcher work: geocode this entity's
// address against one named provider.
type GeocoderTask struct {
	Key      model.EntityKey
	BatchID  string
	Provider string
	Address  model.Address
}

// ConsolidatedOutput is the emitted winner for one entity: the row the
// consolidator selected, ready for downstream publication.
type ConsolidatedOutput struct {
	Candidate model.Candidate
}

// CandidateGeoData is the locator's published result: an entity's resolved
// locality metadata, keyed by the same entity identity. Mirrors the wire
// record's field set; the *Ns fields are a namespace tag fixed to 200 when
// the corresponding ID is non-null, nil otherwise.
type CandidateGeoData struct {
	Key                      model.EntityKey
	Longitude                float64
	Latitude                 float64
	LocalityID               *int64
	LocalityNs               *int64
	AdministrativeDivisionID *int64
	AdministrativeDivisionNs *int64
	CountryID                *int64
	CountryNs                *int64
	ValidGeoPoint            bool
}
