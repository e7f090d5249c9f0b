package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityKey_Composite(t *testing.T) {
	k := EntityKey{EntityType: "accommodation", EntityID: 42}
	assert.Equal(t, "accommodation:42", k.Composite())
	assert.Equal(t, "accommodation:42", k.String())
}

func TestCoordinate_Valid(t *testing.T) {
	assert.True(t, Coordinate{Longitude: 179.9, Latitude: -89.9}.Valid())
	assert.False(t, Coordinate{Longitude: 181, Latitude: 0}.Valid())
	assert.False(t, Coordinate{Longitude: 0, Latitude: 91}.Valid())
}

func TestNewCandidate_FormatsDecimalCoordinate(t *testing.T) {
	key := EntityKey{EntityType: "accommodation", EntityID: 1}
	c := NewCandidate(key, ProviderGoogle, Coordinate{Longitude: 4.895, Latitude: 52.37})

	assert.Equal(t, "accommodation:1", c.Entity)
	assert.Equal(t, "4.895", c.Longitude)
	assert.Equal(t, "52.37", c.Latitude)

	coord, err := c.Coordinate()
	require.NoError(t, err)
	assert.Equal(t, 4.895, coord.Longitude)
	assert.Equal(t, 52.37, coord.Latitude)
}

func TestCandidate_HasCoordinate(t *testing.T) {
	c := Candidate{Longitude: "4.9", Latitude: "52.3"}
	assert.True(t, c.HasCoordinate())

	noCoord := Candidate{}
	assert.False(t, noCoord.HasCoordinate())

	invalid := Candidate{Longitude: "200", Latitude: "52.3"}
	assert.False(t, invalid.HasCoordinate())
}

func TestCandidate_Field(t *testing.T) {
	c := Candidate{Accuracy: "ROOFTOP", CountryCode: "US", Provider: ProviderGoogle}

	v, ok := c.Field("accuracy")
	assert.True(t, ok)
	assert.Equal(t, "ROOFTOP", v)

	_, ok = c.Field("quality")
	assert.False(t, ok)

	_, ok = c.Field("not_a_field")
	assert.False(t, ok)
}

func TestCoordinate_EncodeEWKB(t *testing.T) {
	coord := Coordinate{Longitude: 4.895, Latitude: 52.37}

	data, err := coord.EncodeEWKB()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	point := coord.Point()
	assert.Equal(t, 4.895, point.X())
	assert.Equal(t, 52.37, point.Y())
	assert.Equal(t, 4326, point.SRID())
}

func TestCandidate_GeometryWKB(t *testing.T) {
	c := Candidate{Longitude: "4.895", Latitude: "52.37"}
	data, err := c.GeometryWKB()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	noCoord := Candidate{}
	data, err = noCoord.GeometryWKB()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestIsConsolidated(t *testing.T) {
	assert.True(t, IsConsolidated(ConsolidatedProvider("prod")))
	assert.False(t, IsConsolidated(ProviderTrivago))
	assert.False(t, IsConsolidated("short"))
}
