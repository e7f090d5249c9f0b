package cityfallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
)

func destinations() []Destination {
	return []Destination{
		{CityID: 1, Name: "Amsterdam", Longitude: 4.895, Latitude: 52.37, CountryCode: "NL", CountryID: 1},
		{CityID: 2, Name: "Amsterdam", Longitude: -74.19, Latitude: 42.93, CountryCode: "US", CountryID: 2},
		{CityID: 3, Name: "Berlin", Longitude: 13.4, Latitude: 52.52, CountryCode: "DE", CountryID: 3},
	}
}

func candidate(entityID int64, city, countryCode string) model.Candidate {
	return model.Candidate{
		EntityID:    entityID,
		EntityType:  "accommodation",
		Entity:      "accommodation:1",
		City:        city,
		CountryCode: countryCode,
	}
}

func TestGetFallbackCoordinates_DissentingCountryIgnoresCountry(t *testing.T) {
	f := New(destinations())
	candidates := []model.Candidate{
		candidate(1, "Amsterdamn", "NL"),
		candidate(1, "Amsterdamn", "US"),
		candidate(1, "Amsterdamn", "US"),
	}

	winner, ok := f.GetFallbackCoordinates(candidates)
	require.True(t, ok)
	assert.Equal(t, model.ProviderCityPolygons, winner.Provider)
	assert.Equal(t, "Amsterdam", winner.City)
	assert.Equal(t, "NL", winner.CountryCode) // first-inserted destination wins among equal matches
}

func TestGetFallbackCoordinates_NoCityUnified(t *testing.T) {
	f := New(destinations())
	candidates := []model.Candidate{
		candidate(1, "", ""),
		candidate(1, "", ""),
	}
	_, ok := f.GetFallbackCoordinates(candidates)
	assert.False(t, ok)
}

func TestGetFallbackCoordinates_MajorityCity(t *testing.T) {
	f := New(destinations())
	candidates := []model.Candidate{
		candidate(1, "Berlin", "DE"),
		candidate(1, "Berlin", "DE"),
		candidate(1, "Amsterdam", "DE"),
	}
	winner, ok := f.GetFallbackCoordinates(candidates)
	require.True(t, ok)
	assert.Equal(t, "Berlin", winner.City)
}

func TestGetFallbackCoordinates_NoDestinationMatch(t *testing.T) {
	f := New(destinations())
	candidates := []model.Candidate{candidate(1, "Nowhereville", "ZZ")}
	_, ok := f.GetFallbackCoordinates(candidates)
	assert.False(t, ok)
}
