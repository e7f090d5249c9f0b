package consolidator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/cityfallback"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/ruleset"
)

func geocoderRuleset() *ruleset.Ruleset {
	return &ruleset.Ruleset{
		Schema: ruleset.Schema{Filter: []string{"country_code"}},
		Rules: []ruleset.Rule{
			{"country_code": "US", "accuracy": "interpolated", "confidence": 9.5},
		},
	}
}

func partnerRuleset() *ruleset.Ruleset {
	return &ruleset.Ruleset{
		Rules: []ruleset.Rule{{"provider": "Hotelwiz"}},
	}
}

func destinations() []cityfallback.Destination {
	return []cityfallback.Destination{
		{Name: "Amsterdam", Longitude: 4.895, Latitude: 52.37, CountryCode: "NL"},
	}
}

func TestConsolidate_GeocoderRulesetWins(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(destinations()))
	candidates := []model.Candidate{
		{Provider: model.ProviderMapbox, Longitude: "1", Latitude: "1", Accuracy: "interpolated", Confidence: "9.5", CountryCode: "US"},
		{Provider: model.ProviderTomTom, Longitude: "1", Latitude: "1", Confidence: "9.0", CountryCode: "US"},
	}

	winner, ok := c.Consolidate(candidates, nil)
	require.True(t, ok)

	want := model.Candidate{
		Provider:    model.ProviderMapbox,
		Longitude:   "1",
		Latitude:    "1",
		Accuracy:    "interpolated",
		Confidence:  "9.5",
		CountryCode: "US",
		Score:       ScoreGeocoderRuleset,
	}
	if diff := cmp.Diff(want, winner); diff != "" {
		t.Errorf("winner mismatch (-want +got):\n%s", diff)
	}
}

func TestConsolidate_PartnerCascadeWinsWhenGeocoderRulesetMisses(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(destinations()))
	candidates := []model.Candidate{
		{Provider: model.ProviderTomTom, Longitude: "1", Latitude: "1", Confidence: "9.0", CountryCode: "US"},
		{Provider: "Hotelwiz", Longitude: "2", Latitude: "2"},
	}

	winner, ok := c.Consolidate(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "Hotelwiz", winner.Provider)
	assert.Equal(t, ScorePartnerRuleset, winner.Score)
}

func TestConsolidate_CityFallbackWins(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(destinations()))
	candidates := []model.Candidate{
		{Provider: model.ProviderOSM, City: "Amsterdam", CountryCode: "NL"},
	}

	winner, ok := c.Consolidate(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, model.ProviderCityPolygons, winner.Provider)
	assert.Equal(t, ScoreFallback, winner.Score)
}

func TestConsolidate_ItemFallbackRequiresCoordinate(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(nil))

	noCoord := []model.Candidate{{Provider: model.ProviderTrivago}}
	_, ok := c.Consolidate(noCoord, nil)
	assert.False(t, ok)

	withCoord := []model.Candidate{{Provider: model.ProviderTrivago, Longitude: "1", Latitude: "1"}}
	winner, ok := c.Consolidate(withCoord, nil)
	require.True(t, ok)
	assert.Equal(t, model.ProviderTrivago, winner.Provider)
	assert.Equal(t, ScoreFallback, winner.Score)
}

func TestConsolidate_MonotonicGuardBlocksLowerScore(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(destinations()))
	candidates := []model.Candidate{
		{Provider: model.ProviderOSM, City: "Amsterdam", CountryCode: "NL"},
	}
	previous := &model.Candidate{Provider: model.ConsolidatedProvider("test"), Score: 0.5}

	_, ok := c.Consolidate(candidates, previous)
	assert.False(t, ok)
}

func TestConsolidate_MonotonicGuardAllowsStrictlyHigherScore(t *testing.T) {
	c := New(geocoderRuleset(), partnerRuleset(), cityfallback.New(destinations()))
	candidates := []model.Candidate{
		{Provider: model.ProviderMapbox, Longitude: "1", Latitude: "1", Accuracy: "interpolated", Confidence: "9.5", CountryCode: "US"},
	}
	previous := &model.Candidate{Provider: model.ConsolidatedProvider("test"), Score: 0.5}

	winner, ok := c.Consolidate(candidates, previous)
	require.True(t, ok)
	assert.Equal(t, ScoreGeocoderRuleset, winner.Score)
}

func TestEligibleCandidates_ExcludesConsolidatedRows(t *testing.T) {
	candidates := []model.Candidate{
		{Provider: model.ProviderGoogle},
		{Provider: model.ConsolidatedProvider("prod")},
	}
	eligible := EligibleCandidates(candidates)
	require.Len(t, eligible, 1)
	assert.Equal(t, model.ProviderGoogle, eligible[0].Provider)
}
