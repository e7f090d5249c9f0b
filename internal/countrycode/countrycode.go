// Package countrycode resolves free-text country identifiers (an ISO-3166-2
// code, an ISO-3166-3 code, or a country name) down to a canonical
// ISO-3166-2 code: accept a valid ISO-3166-2 code as-is, else look up by
// ISO-3166-3, else fuzzy-match by name.
package countrycode

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/trivago/geolocator/internal/fuzzy"
)

// Entry is one row of the bootstrap country-code reference table.
type Entry struct {
	Name          string `json:"name"`
	ISO3166_2     string `json:"iso_3166_2"`
	ISO3166_3     string `json:"iso_3166_3"`
	DestinationID int64  `json:"destination_id"`
}

// Mapper resolves free-text country identifiers to ISO-3166-2 codes. It is
// process-local: built once at startup from the bootstrap dataset and
// reused for the lifetime of the router worker.
type Mapper struct {
	mu sync.Mutex

	valid       map[string]bool
	byISO3166_3 map[string]string
	byName      map[string]string
	byID        map[int64]string
	index       *fuzzy.NGram
	cache       map[string]string
}

// LoadFromFile builds a Mapper from the bootstrap country-code JSON file.
func LoadFromFile(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "countrycode: read %s", path)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "countrycode: parse %s", path)
	}
	return NewMapper(entries), nil
}

// NewMapper builds a Mapper from the bootstrap country-code entries.
func NewMapper(entries []Entry) *Mapper {
	m := &Mapper{
		valid:       make(map[string]bool, len(entries)),
		byISO3166_3: make(map[string]string, len(entries)),
		byName:      make(map[string]string, len(entries)),
		byID:        make(map[int64]string, len(entries)),
		cache:       make(map[string]string),
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		m.valid[e.ISO3166_2] = true
		if e.ISO3166_3 != "" {
			m.byISO3166_3[e.ISO3166_3] = e.ISO3166_2
		}
		folded := fuzzy.Fold(e.Name)
		m.byName[folded] = e.ISO3166_2
		names = append(names, folded)
		if e.DestinationID != 0 {
			m.byID[e.DestinationID] = e.ISO3166_2
		}
	}
	m.index = fuzzy.NewNGram(names)
	return m
}

// IsValidCountryCode reports whether code is a known ISO-3166-2 code.
func (m *Mapper) IsValidCountryCode(code string) bool {
	return m.valid[code]
}

// MapISO3166_3 returns the ISO-3166-2 code for an ISO-3166-3 code, or "".
func (m *Mapper) MapISO3166_3(code string) string {
	return m.byISO3166_3[code]
}

// MapDestinationID returns the ISO-3166-2 code for a destination id, or "".
func (m *Mapper) MapDestinationID(id int64) string {
	return m.byID[id]
}

// MapName fuzzy-matches a free-text country name to an ISO-3166-2 code
// (n-gram threshold 0.3, ASCII-folded), caching lookups per distinct input.
func (m *Mapper) MapName(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if code, ok := m.cache[name]; ok {
		return code
	}

	matches := m.index.Search(name, 0.3)
	var resolved string
	if len(matches) > 0 {
		resolved = m.byName[matches[0]]
	}
	m.cache[name] = resolved
	return resolved
}

// Resolve applies the full resolution order: accept a valid ISO-3166-2 code
// as-is, else ISO-3166-3 lookup, else fuzzy name match. Returns "" if none
// of the three steps produce a match.
func (m *Mapper) Resolve(country string) string {
	if country == "" {
		return ""
	}
	if m.IsValidCountryCode(country) {
		return country
	}
	if code := m.MapISO3166_3(country); code != "" {
		return code
	}
	return m.MapName(country)
}
