package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pricing-cli/internal/model"
)

func TestIsChain(t *testing.T) {
	assert.True(t, IsChain("Pizza Hut Express"))
	assert.True(t, IsChain("DOMINO'S"))
	assert.False(t, IsChain("Urban Oven"))
}

func TestPassesRating(t *testing.T) {
	assert.True(t, PassesRating(model.QueryFilters{}, 0))
	assert.True(t, PassesRating(model.QueryFilters{MinRating: 4}, 4))
	assert.False(t, PassesRating(model.QueryFilters{MinRating: 4}, 3.9))
}

func TestMatchesCuisine(t *testing.T) {
	assert.True(t, MatchesCuisine(model.QueryFilters{}, []string{"thai"}))
	assert.True(t, MatchesCuisine(model.QueryFilters{Cuisine: []string{"Italian"}}, []string{"restaurant", "italian"}))
	assert.False(t, MatchesCuisine(model.QueryFilters{Cuisine: []string{"italian"}}, []string{"thai"}))
}

func TestWithinRadius(t *testing.T) {
	query := model.QueryInput{StoreLat: 37.7749, StoreLng: -122.4194, RadiusKm: 5}
	assert.True(t, WithinRadius(query, 37.78, -122.42))
	assert.False(t, WithinRadius(query, 37.8044, -122.2712), "Oakland is ~13km out")

	// Queries without store coordinates skip the radius check.
	assert.True(t, WithinRadius(model.QueryInput{RadiusKm: 1}, 0, 0))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Zero(t, r.Len())

	r.Register(NewDemo())
	r.Register(NewManual(ManualConfig{}))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "demo", r.Enabled()[0].Name(), "registration order preserved")
	assert.Equal(t, map[string]string{"demo": "1.0.0", "manual": "1.0.0"}, r.Versions())
}
