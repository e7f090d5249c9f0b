package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
)

func usCandidate(provider string, fields map[string]string) model.Candidate {
	c := model.Candidate{Provider: provider, Longitude: "1", Latitude: "1"}
	for k, v := range fields {
		switch k {
		case "accuracy":
			c.Accuracy = v
		case "confidence":
			c.Confidence = v
		case "quality":
			c.Quality = v
		case "city":
			c.City = v
		case "country_code":
			c.CountryCode = v
		}
	}
	return c
}

func geocoderRuleset() *Ruleset {
	return &Ruleset{
		Schema: Schema{Filter: []string{"country_code"}},
		Rules: []Rule{
			{"country_code": "US", "accuracy": "ROOFTOP"},
			{"country_code": "US", "quality": 0.8},
			{"confidence": 9.0},
		},
	}
}

func TestEvaluate_RanksByFirstMatchedRuleInSubset(t *testing.T) {
	rs := geocoderRuleset()
	candidates := []model.Candidate{
		usCandidate(model.ProviderGoogle, map[string]string{"accuracy": "ROOFTOP", "confidence": "8.0", "quality": "political", "country_code": "US"}),
		usCandidate(model.ProviderTomTom, map[string]string{"confidence": "10.0", "quality": "Point Address", "country_code": "US"}),
		usCandidate(model.ProviderMapbox, map[string]string{"accuracy": "interpolated", "quality": "0.9", "country_code": "US"}),
	}

	winner, ok := rs.Evaluate(candidates)
	require.True(t, ok)
	assert.Equal(t, model.ProviderGoogle, winner.Provider) // matches rule 1 (rank 1): accuracy=ROOFTOP
}

func TestEvaluate_UnifyVetoFallsBackToDefaultSubset(t *testing.T) {
	rs := &Ruleset{
		Schema: Schema{Filter: []string{"country_code"}},
		Rules: []Rule{
			{"country_code": "US", "accuracy": "ROOFTOP"},
			{"confidence": 5.0}, // default subset: no country_code key
		},
	}
	candidates := []model.Candidate{
		usCandidate("a", map[string]string{"country_code": "US", "confidence": "6.0"}),
		usCandidate("b", map[string]string{"country_code": "NL", "confidence": "7.0"}),
	}

	winner, ok := rs.Evaluate(candidates)
	require.True(t, ok)
	assert.Equal(t, "a", winner.Provider) // rank 1 under default subset
}

func TestEvaluate_NumericRuleRequiresGreaterOrEqual(t *testing.T) {
	rs := &Ruleset{
		Rules: []Rule{{"confidence": 9.0}},
	}
	below := usCandidate("below", map[string]string{"confidence": "8.9"})
	atThreshold := usCandidate("at", map[string]string{"confidence": "9.0"})

	_, ok := rs.Evaluate([]model.Candidate{below})
	assert.False(t, ok)

	winner, ok := rs.Evaluate([]model.Candidate{atThreshold})
	require.True(t, ok)
	assert.Equal(t, "at", winner.Provider)
}

func TestEvaluate_NoMatchReturnsFalse(t *testing.T) {
	rs := &Ruleset{Rules: []Rule{{"confidence": 99.0}}}
	c := usCandidate("x", map[string]string{"confidence": "1.0"})
	_, ok := rs.Evaluate([]model.Candidate{c})
	assert.False(t, ok)
}

func TestEvaluate_EmptyCandidates(t *testing.T) {
	rs := geocoderRuleset()
	_, ok := rs.Evaluate(nil)
	assert.False(t, ok)
}

func TestEvaluate_TieBrokenByFirstOccurrence(t *testing.T) {
	rs := &Ruleset{Rules: []Rule{{"quality": "good"}}}
	first := usCandidate("first", map[string]string{"quality": "good"})
	second := usCandidate("second", map[string]string{"quality": "good"})

	winner, ok := rs.Evaluate([]model.Candidate{first, second})
	require.True(t, ok)
	assert.Equal(t, "first", winner.Provider)
}

func TestUnifyFilterFields_Veto(t *testing.T) {
	candidates := []model.Candidate{
		usCandidate("a", map[string]string{"country_code": "NL"}),
		usCandidate("b", map[string]string{"country_code": "US"}),
	}
	unified := unifyFilterFields(candidates, []string{"country_code"})
	_, present := unified["country_code"]
	assert.False(t, present)
}

func TestUnifyFilterFields_NullsIgnored(t *testing.T) {
	candidates := []model.Candidate{
		usCandidate("a", map[string]string{"country_code": "NL"}),
		usCandidate("b", nil),
	}
	unified := unifyFilterFields(candidates, []string{"country_code"})
	assert.Equal(t, "NL", unified["country_code"])
}
