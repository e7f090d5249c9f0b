// Package consolidator implements the strict ruleset/fallback cascade that
// reduces an entity's candidate set to a single winner: geocoder ruleset,
// then partner ruleset, then city fallback, then the item (trivago)
// fallback, stopping at the first stage that produces a winner, and
// enforcing the monotonic-score guard against the previous winner.
package consolidator

import (
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/cityfallback"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/ruleset"
)

// itemFallbackRuleset is the hard-coded, single-rule item fallback: it
// matches only the feed's own trivago-sourced guess, and only when that
// row carries a usable coordinate.
var itemFallbackRuleset = &ruleset.Ruleset{
	Rules: []ruleset.Rule{{"provider": model.ProviderTrivago}},
}

const (
	// ScoreGeocoderRuleset is emitted when stage 1 (geocoder ruleset) wins.
	ScoreGeocoderRuleset = 1.0
	// ScorePartnerRuleset is emitted when stage 2 (partner ruleset) wins.
	ScorePartnerRuleset = 0.5
	// ScoreFallback is emitted by both the city fallback and item fallback
	// stages.
	ScoreFallback = 0.0
)

// Consolidator orchestrates the ruleset/fallback cascade for a single
// entity's candidate set.
type Consolidator struct {
	GeocoderRuleset *ruleset.Ruleset
	PartnerRuleset  *ruleset.Ruleset
	CityFallback    *cityfallback.Fallback
}

// New builds a Consolidator from its loaded rulesets and city fallback
// singleton.
func New(geocoderRuleset, partnerRuleset *ruleset.Ruleset, cityFallback *cityfallback.Fallback) *Consolidator {
	return &Consolidator{
		GeocoderRuleset: geocoderRuleset,
		PartnerRuleset:  partnerRuleset,
		CityFallback:    cityFallback,
	}
}

// EligibleCandidates filters out rows the consolidator must never select:
// any previous-winner row, identified by the consolidated provider prefix.
// The cascade never picks its own earlier output.
func EligibleCandidates(candidates []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if model.IsConsolidated(c.Provider) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Consolidate runs the full cascade against candidates (already filtered to
// eligible rows; see EligibleCandidates) and returns the new winner to
// write, gated by the monotonic-score guard against previousWinner (the
// current consolidated_<env> row for this entity, or nil if none exists
// yet). Returns ok=false if no stage produced a winner, or the produced
// winner's score does not strictly exceed the previous one's.
func (c *Consolidator) Consolidate(candidates []model.Candidate, previousWinner *model.Candidate) (model.Candidate, bool) {
	winner, ok := c.runCascade(candidates)
	if !ok {
		return model.Candidate{}, false
	}

	if previousWinner != nil && winner.Score <= previousWinner.Score {
		zap.L().Info("consolidator: candidate winner does not exceed previous score",
			zap.String("entity", winner.Entity),
			zap.Float64("new_score", winner.Score),
			zap.Float64("previous_score", previousWinner.Score),
		)
		return model.Candidate{}, false
	}

	return winner, true
}

func (c *Consolidator) runCascade(candidates []model.Candidate) (model.Candidate, bool) {
	if c.GeocoderRuleset != nil {
		if winner, ok := c.GeocoderRuleset.Evaluate(candidates); ok {
			return score(winner, ScoreGeocoderRuleset), true
		}
	}

	if c.PartnerRuleset != nil {
		if winner, ok := c.PartnerRuleset.Evaluate(candidates); ok {
			return score(winner, ScorePartnerRuleset), true
		}
	}

	if c.CityFallback != nil {
		if winner, ok := c.CityFallback.GetFallbackCoordinates(candidates); ok {
			return score(winner, ScoreFallback), true
		}
	}

	if winner, ok := itemFallbackRuleset.Evaluate(candidates); ok && winner.HasCoordinate() {
		return score(winner, ScoreFallback), true
	}

	return model.Candidate{}, false
}

// score stamps the producing stage's fixed score onto the selected
// candidate; provider, coordinate and city/country_code carry over as-is.
func score(winner model.Candidate, s float64) model.Candidate {
	winner.Score = s
	return winner
}
