package geocode

import (
	"github.com/trivago/geolocator/internal/fuzzy"
)

// scoredFields are the address fields the rating function compares by
// fuzzy token-set similarity between the input and a returned alternate.
var scoredFields = []string{"street", "district", "city", "postal_code", "region"}

// ScoreAlternate rates a single provider alternate against the input
// address: +1.0 for each scored field whose fuzzy similarity to the input
// meets the threshold, plus a distance bonus when the input carried a guess
// coordinate.
func ScoreAlternate(input, returned Address, guessDistanceMeters *float64) float64 {
	var total float64
	for _, f := range scoredFields {
		if fuzzy.FieldMatches(input[f], composedField(returned, f)) {
			total += 1.0
		}
	}
	if guessDistanceMeters != nil {
		total += fuzzy.DistanceScore(*guessDistanceMeters)
	}
	return total
}

// composedField returns the returned side's value for f, pre-composing
// "street" as "{house_number} {street}" when both are present.
func composedField(returned Address, f string) string {
	if f != "street" {
		return returned[f]
	}
	houseNumber, street := returned["house_number"], returned["street"]
	if houseNumber != "" && street != "" {
		return houseNumber + " " + street
	}
	return street
}

// BestAlternate scores every candidate result in results against input and
// returns the index of the max-scoring one. Ties keep the first (earliest)
// alternate, matching a stable max-by-key reduction.
func BestAlternate(input Address, results []Result, parse func(map[string]any) Address, guessDistanceMeters []*float64) int {
	best := 0
	bestScore := ScoreAlternate(input, parse(results[0].Raw), guessDistanceMeters[0])
	for i := 1; i < len(results); i++ {
		s := ScoreAlternate(input, parse(results[i].Raw), guessDistanceMeters[i])
		if s > bestScore {
			bestScore = s
			best = i
		}
	}
	return best
}
