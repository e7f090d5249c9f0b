// Package cityfallback implements the name-similarity last resort: when no
// ruleset rule matches, unify the candidate set's city (majority rule) and
// country_code (unanimity veto) and look up the nearest destination by
// trigram similarity.
package cityfallback

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/trivago/geolocator/internal/fuzzy"
	"github.com/trivago/geolocator/internal/model"
)

// Destination is one row of the bootstrap destinations reference table.
type Destination struct {
	CityID      int64   `json:"city_id"`
	Name        string  `json:"name"`
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	CountryCode string  `json:"country_code"`
	CountryID   int64   `json:"country_id"`
}

// Fallback is the process-local, lazily-initialised singleton wrapping the
// destinations table. Mutation of its internal similarity cache is guarded
// by a mutex.
type Fallback struct {
	mu     sync.Mutex
	dests  []Destination
	byName map[string][]Destination // folded name -> destinations sharing it, insertion order preserved
	index  *fuzzy.NGram
	cache  map[string][]string // folded query -> ordered matching folded names
}

// LoadFromFile builds a Fallback from the bootstrap destinations JSON file.
func LoadFromFile(path string) (*Fallback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cityfallback: read %s", path)
	}
	var dests []Destination
	if err := json.Unmarshal(data, &dests); err != nil {
		return nil, eris.Wrapf(err, "cityfallback: parse %s", path)
	}
	return New(dests), nil
}

// New builds a Fallback from an already-loaded destination list.
func New(dests []Destination) *Fallback {
	f := &Fallback{
		dests:  append([]Destination(nil), dests...),
		byName: make(map[string][]Destination),
		cache:  make(map[string][]string),
	}
	names := make([]string, 0, len(dests))
	seen := make(map[string]bool, len(dests))
	for _, d := range dests {
		folded := fuzzy.Fold(d.Name)
		f.byName[folded] = append(f.byName[folded], d)
		if !seen[folded] {
			seen[folded] = true
			names = append(names, folded)
		}
	}
	f.index = fuzzy.NewNGram(names)
	return f
}

const similarityThreshold = 0.3

// GetFallbackCoordinates unifies city (majority, nulls ignored) and
// country_code (unanimity veto, nulls ignored) across candidates, then
// searches destinations by n-gram similarity and returns the first match
// whose country_code agrees with the unified one (or the first match
// unconditionally if country_code didn't unify). The result is wrapped as a
// city_polygons candidate. Returns ok=false if no city unifies, or no
// destination matches.
func (f *Fallback) GetFallbackCoordinates(candidates []model.Candidate) (model.Candidate, bool) {
	city, ok := unifyCityMajority(candidates)
	if !ok {
		return model.Candidate{}, false
	}
	countryCode := unifyCountryCodeVeto(candidates)

	matches := f.search(city)
	for _, folded := range matches {
		for _, d := range f.byName[folded] {
			if countryCode == "" || d.CountryCode == countryCode {
				return f.toCandidate(candidates[0].Key(), d), true
			}
		}
	}
	return model.Candidate{}, false
}

func (f *Fallback) search(query string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	folded := fuzzy.Fold(query)
	if cached, ok := f.cache[folded]; ok {
		return cached
	}
	matches := f.index.Search(query, similarityThreshold)
	f.cache[folded] = matches
	return matches
}

func (f *Fallback) toCandidate(key model.EntityKey, d Destination) model.Candidate {
	c := model.NewCandidate(key, model.ProviderCityPolygons, model.Coordinate{Longitude: d.Longitude, Latitude: d.Latitude})
	c.City = d.Name
	c.CountryCode = d.CountryCode
	return c
}

// unifyCityMajority applies majority rule with nulls ignored: the most
// common non-empty city value wins; ties go to whichever value was seen
// first.
func unifyCityMajority(candidates []model.Candidate) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, c := range candidates {
		if c.City == "" {
			continue
		}
		if counts[c.City] == 0 {
			order = append(order, c.City)
		}
		counts[c.City]++
	}
	if len(order) == 0 {
		return "", false
	}
	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}

// unifyCountryCodeVeto applies unanimity veto with nulls ignored: more than
// one distinct non-empty country_code yields "" (no unification).
func unifyCountryCodeVeto(candidates []model.Candidate) string {
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.CountryCode != "" {
			seen[c.CountryCode] = true
		}
	}
	if len(seen) != 1 {
		return ""
	}
	for v := range seen {
		return v
	}
	return ""
}
