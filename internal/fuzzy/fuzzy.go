// Package fuzzy implements the string-similarity and distance primitives the
// provider scoring, consolidator ruleset, and city fallback depend on: a
// token-set ratio for comparing address field strings, an n-gram (trigram)
// similarity search over a small set of candidate names, and WGS-84 great
// circle distance. The callers operate on data already loaded in memory,
// so the matching runs in-process on top of github.com/agext/levenshtein
// rather than through a database similarity function.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const earthRadiusMeters = 6371000.0

// TokenSetRatio scores the similarity of two strings on a 0-100 scale using
// a token-set comparison: both strings are tokenized on whitespace, the
// shared tokens factored out, and the remainder compared by normalized
// Levenshtein distance. Same contract as fuzzywuzzy's token_set_ratio.
func TokenSetRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	tokensA := tokenize(a)
	tokensB := tokenize(b)

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	var intersection, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sorted := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(onlyB, " "))

	best := ratio(sorted, combinedA)
	if r := ratio(sorted, combinedB); r > best {
		best = r
	}
	if r := ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// ratio converts Levenshtein edit distance into a fuzzywuzzy-style 0-100
// similarity score.
func ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, nil)
	return int(math.Round((1.0 - float64(dist)/float64(maxLen)) * 100))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// FieldMatches reports whether two address field values are similar enough
// to be considered a match: token-set ratio at or above 75.
func FieldMatches(a, b string) bool {
	return TokenSetRatio(a, b) >= 75
}

// Fold ASCII-folds a Unicode string (dropping diacritics) and lowercases it,
// the normalisation the country-name fuzzy matcher applies before search.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// NGram provides trigram-similarity search over a small, static set of
// candidate names, backing the destinations and country-name lookups.
type NGram struct {
	names []string
	grams map[string]map[string]bool
}

// NewNGram builds a trigram index over names.
func NewNGram(names []string) *NGram {
	idx := &NGram{
		names: append([]string(nil), names...),
		grams: make(map[string]map[string]bool, len(names)),
	}
	for _, n := range names {
		idx.grams[n] = trigramSet(Fold(n))
	}
	return idx
}

// Search returns names whose trigram (Jaccard) similarity with query meets
// or exceeds threshold, ordered from most to least similar.
func (idx *NGram) Search(query string, threshold float64) []string {
	q := trigramSet(Fold(query))

	type scored struct {
		name  string
		score float64
	}
	var results []scored
	for _, name := range idx.names {
		score := jaccard(q, idx.grams[name])
		if score >= threshold {
			results = append(results, scored{name, score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.name
	}
	return out
}

func trigramSet(s string) map[string]bool {
	padded := "  " + s + "  "
	grams := make(map[string]bool)
	chars := []rune(padded)
	for i := 0; i+3 <= len(chars); i++ {
		grams[string(chars[i:i+3])] = true
	}
	return grams
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for g := range a {
		if b[g] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// HaversineMeters returns the great-circle distance in meters between two
// WGS-84 longitude/latitude pairs.
func HaversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DistanceScore is the proximity bonus for a returned alternate: a flat 3.0
// within a 10-meter free radius, decaying exponentially beyond it with time
// constant tau = -10/ln(0.5) (a 10-meter half-life).
func DistanceScore(distanceMeters float64) float64 {
	const base = 3.0
	const tau = 10.0 / 0.6931471805599453 // -10/ln(0.5)

	if distanceMeters <= 10 {
		return base
	}
	return base * math.Exp((10.0-distanceMeters)/tau)
}
