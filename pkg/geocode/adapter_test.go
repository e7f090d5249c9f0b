package geocode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	calls     []Address
	responses []func(projected Address) ([]Result, error)
	parse     func(map[string]any) Address
}

func (f *fakeTransport) Request(ctx context.Context, key string, projected Address) ([]Result, error) {
	i := len(f.calls)
	f.calls = append(f.calls, projected)
	if i >= len(f.responses) {
		return nil, &NoResultsFoundError{}
	}
	return f.responses[i](projected)
}

func (f *fakeTransport) ParseReturnedAddress(raw map[string]any) Address {
	if f.parse != nil {
		return f.parse(raw)
	}
	return Address{}
}

func TestBaseGeocode_SuccessOnFirstCall(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) {
				return []Result{{Longitude: 4.9, Latitude: 52.37}}, nil
			},
		},
	}
	b := &Base{
		ProviderName: "test",
		Required:     []string{"street", "city"},
		Priority:     []string{"postal_code", "region"},
		Transport:    tr,
	}

	out, err := b.Geocode(context.Background(), "key", Address{"street": "Damrak 1", "city": "Amsterdam", "postal_code": "1012"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, len(tr.calls))
	assert.Equal(t, 52.37, out.Latitude)
	assert.Empty(t, out.Rejected)
	assert.ElementsMatch(t, []string{"street", "city"}, out.Supplied)
}

func TestBaseGeocode_ShedsPriorityTailOnNoResults(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) { return nil, &NoResultsFoundError{} },
			func(Address) ([]Result, error) { return nil, &NoResultsFoundError{} },
			func(projected Address) ([]Result, error) {
				_, hasRegion := projected["region"]
				assert.False(t, hasRegion, "region should have been shed by the third attempt")
				return []Result{{Longitude: 1, Latitude: 1}}, nil
			},
		},
	}
	b := &Base{
		ProviderName: "test",
		Required:     []string{"street"},
		Priority:     []string{"region", "postal_code"},
		Transport:    tr,
	}

	out, err := b.Geocode(context.Background(), "key", Address{"street": "x", "region": "y", "postal_code": "z"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, len(tr.calls))
	assert.ElementsMatch(t, []string{"postal_code", "region"}, out.Rejected)
}

func TestBaseGeocode_ExhaustsAllPriorityFieldsAndSurfacesError(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) { return nil, &NoResultsFoundError{} },
			func(Address) ([]Result, error) { return nil, &NoResultsFoundError{} },
		},
	}
	b := &Base{
		ProviderName: "test",
		Required:     []string{"street"},
		Priority:     []string{"region"},
		Transport:    tr,
	}

	_, err := b.Geocode(context.Background(), "key", Address{"street": "x", "region": "y"}, nil)
	require.Error(t, err)
	assert.IsType(t, &NoResultsFoundError{}, err)
}

func TestBaseGeocode_NonShedErrorSurfacesImmediately(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) { return nil, &InvalidRequestError{Provider: "test"} },
		},
	}
	b := &Base{ProviderName: "test", Required: []string{"street"}, Transport: tr}

	_, err := b.Geocode(context.Background(), "key", Address{"street": "x"}, nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidRequestError{}, err)
}

func TestBaseGeocode_PicksBestScoringAlternate(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) {
				return []Result{
					{Longitude: 0, Latitude: 0, Raw: map[string]any{"city": "Wrong City"}},
					{Longitude: 4.9, Latitude: 52.37, Raw: map[string]any{"city": "Amsterdam"}},
				}, nil
			},
		},
		parse: func(raw map[string]any) Address {
			return Address{"city": raw["city"].(string)}
		},
	}
	b := &Base{ProviderName: "test", Required: []string{"city"}, Transport: tr}

	out, err := b.Geocode(context.Background(), "key", Address{"city": "Amsterdam"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 52.37, out.Latitude)
	assert.Equal(t, "Amsterdam", out.AddressOut["city"])
}

func TestBaseGeocode_GuessDistanceSetWhenGuessSupplied(t *testing.T) {
	tr := &fakeTransport{
		responses: []func(Address) ([]Result, error){
			func(Address) ([]Result, error) {
				return []Result{{Longitude: 4.9, Latitude: 52.37}}, nil
			},
		},
	}
	b := &Base{ProviderName: "test", Required: []string{"city"}, Transport: tr}

	out, err := b.Geocode(context.Background(), "key", Address{"city": "Amsterdam"}, &Coordinate{Longitude: 4.9, Latitude: 52.37})
	require.NoError(t, err)
	require.NotNil(t, out.GuessDistance)
	assert.InDelta(t, 0, *out.GuessDistance, 1.0)
}
