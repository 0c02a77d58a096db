package collector

import (
	"strings"

	"github.com/sells-group/pricing-cli/internal/geo"
	"github.com/sells-group/pricing-cli/internal/model"
)

// chainHints flags well-known chains for the exclude-chains filter.
// Substring match on the lowercased venue name.
var chainHints = []string{
	"pizza hut", "domino", "mcdonald", "subway", "starbucks", "kfc", "burger king",
}

// IsChain reports whether a venue name looks like a national chain.
func IsChain(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range chainHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// PassesRating applies the minimum-rating filter. Unrated venues only
// pass when no minimum is set.
func PassesRating(filters model.QueryFilters, rating float64) bool {
	return rating >= filters.MinRating
}

// MatchesCuisine applies the cuisine allow-list. An empty list allows
// everything.
func MatchesCuisine(filters model.QueryFilters, categories []string) bool {
	if len(filters.Cuisine) == 0 {
		return true
	}
	for _, want := range filters.Cuisine {
		for _, have := range categories {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// WithinRadius reports whether a venue is inside the query's search
// radius. Queries without store coordinates skip the check.
func WithinRadius(query model.QueryInput, lat, lng float64) bool {
	if query.StoreLat == 0 && query.StoreLng == 0 {
		return true
	}
	return geo.HaversineKM(query.StoreLat, query.StoreLng, lat, lng) <= query.RadiusKm
}
