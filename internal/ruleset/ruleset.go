// Package ruleset implements the rank-and-filter evaluator: an ordered list
// of field-value rules, optionally segmented by a set of filter fields the
// candidate set must unanimously agree on, used to pick a single winning
// model.Candidate out of a multi-provider set.
package ruleset

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/trivago/geolocator/internal/model"
)

// Schema describes the shape a ruleset document expects: which fields rules
// may reference, which of those are required on a matching candidate
// (informational only — matching itself only consults non-null rule
// fields), and which fields are filter fields used to select a rule subset.
type Schema struct {
	Fields   []string `json:"fields"`
	Required []string `json:"required"`
	Filter   []string `json:"filter"`
}

// Rule is a single field-name to expected-value mapping. Values come from
// the JSON document as-is (string or number); matching coerces as 4.F
// describes.
type Rule map[string]any

// Ruleset is an ordered list of rules plus the schema describing their
// filter fields.
type Ruleset struct {
	Schema Schema `json:"schema"`
	Rules  []Rule `json:"rules"`
}

// Load reads a ruleset document from path.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ruleset: read %s", path)
	}
	var rs Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "ruleset: parse %s", path)
	}
	return &rs, nil
}

// Finalist is a candidate that matched some rule, with its 1-based rank
// (lower is better) within the rule subset selected for this evaluation.
type Finalist struct {
	Candidate model.Candidate
	Rank      int
}

// Evaluate ranks candidates against the ruleset and returns the single
// winning candidate, or ok=false if no candidate matched any rule (or the
// candidate list is empty).
func (rs *Ruleset) Evaluate(candidates []model.Candidate) (model.Candidate, bool) {
	if len(candidates) == 0 || rs == nil {
		return model.Candidate{}, false
	}

	unified := unifyFilterFields(candidates, rs.Schema.Filter)
	subset := selectRuleSubset(rs.Rules, rs.Schema.Filter, unified)

	var best *Finalist
	for _, c := range candidates {
		rank, matched := matchRank(c, subset, rs.Schema.Filter)
		if !matched {
			continue
		}
		if best == nil || rank < best.Rank {
			f := Finalist{Candidate: c, Rank: rank}
			best = &f
		}
	}
	if best == nil {
		return model.Candidate{}, false
	}
	return best.Candidate, true
}

// unifyFilterFields computes, for each filter field, the single value every
// candidate with a non-null value for that field agrees on. More than one
// distinct non-null value is a unanimity veto and yields null (empty
// string) for that field.
func unifyFilterFields(candidates []model.Candidate, filterFields []string) map[string]string {
	unified := make(map[string]string, len(filterFields))
	for _, f := range filterFields {
		seen := make(map[string]bool)
		for _, c := range candidates {
			if v, ok := c.Field(f); ok {
				seen[v] = true
			}
		}
		if len(seen) == 1 {
			for v := range seen {
				unified[f] = v
			}
		}
		// len(seen) == 0 or > 1: leave absent, meaning "null" for this field.
	}
	return unified
}

// selectRuleSubset keeps only rules whose filter-field values exactly equal
// the unified values (null == null, string equality otherwise). If the
// resulting subset is empty, falls back to the "default" subset: rules
// where every filter field is null (absent from the rule).
func selectRuleSubset(rules []Rule, filterFields []string, unified map[string]string) []Rule {
	var subset []Rule
	for _, r := range rules {
		if ruleMatchesFilter(r, filterFields, unified) {
			subset = append(subset, r)
		}
	}
	if len(subset) > 0 {
		return subset
	}

	var defaults []Rule
	for _, r := range rules {
		isDefault := true
		for _, f := range filterFields {
			if _, present := r[f]; present {
				isDefault = false
				break
			}
		}
		if isDefault {
			defaults = append(defaults, r)
		}
	}
	return defaults
}

func ruleMatchesFilter(r Rule, filterFields []string, unified map[string]string) bool {
	for _, f := range filterFields {
		ruleVal, rulePresent := r[f]
		unifiedVal, unifiedPresent := unified[f]
		switch {
		case !rulePresent && !unifiedPresent:
			// null == null
		case rulePresent && unifiedPresent:
			if stringify(ruleVal) != unifiedVal {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// matchRank returns the 1-based position of the first rule in subset that c
// matches, or ok=false if c matches none.
func matchRank(c model.Candidate, subset []Rule, filterFields []string) (int, bool) {
	filterSet := make(map[string]bool, len(filterFields))
	for _, f := range filterFields {
		filterSet[f] = true
	}

	for i, rule := range subset {
		if ruleMatchesCandidate(c, rule, filterSet) {
			return i + 1, true
		}
	}
	return 0, false
}

// ruleMatchesCandidate reports whether c satisfies every non-null,
// non-filter field of rule: numeric rule values require the candidate's
// coerced value to be >= the rule's; everything else requires string
// equality. A coercion failure fails the match for that rule only, never
// the candidate as a whole.
func ruleMatchesCandidate(c model.Candidate, rule Rule, filterSet map[string]bool) bool {
	for field, ruleVal := range rule {
		if filterSet[field] {
			continue // filter fields already served as the rule-subset selector
		}
		if ruleVal == nil {
			continue
		}
		candVal, ok := c.Field(field)
		if !ok {
			return false
		}
		if !fieldMatches(candVal, ruleVal) {
			return false
		}
	}
	return true
}

func fieldMatches(candVal string, ruleVal any) bool {
	ruleNum, ruleIsNum := numericValue(ruleVal)
	candNum, candErr := strconv.ParseFloat(candVal, 64)
	if ruleIsNum {
		if candErr != nil {
			return false
		}
		return candNum >= ruleNum
	}
	return candVal == stringify(ruleVal)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// GetTopRanked evaluates candidates against rs and returns the winner, or
// nothing.
func GetTopRanked(rs *Ruleset, candidates []model.Candidate) (model.Candidate, bool) {
	return rs.Evaluate(candidates)
}
