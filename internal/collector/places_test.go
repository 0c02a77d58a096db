package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
)

const placesSearchPayload = `{
	"status": "OK",
	"results": [
		{
			"place_id": "p1",
			"name": "Bella Corner",
			"vicinity": "300 Valencia St",
			"rating": 4.2,
			"price_level": 2,
			"types": ["restaurant", "italian"],
			"geometry": {"location": {"lat": 37.76, "lng": -122.42}}
		},
		{
			"place_id": "p2",
			"name": "Sunset Trattoria",
			"vicinity": "400 Irving St",
			"rating": 3.5,
			"price_level": 0,
			"types": ["restaurant", "thai"],
			"geometry": {"location": {"lat": 37.75, "lng": -122.47}}
		}
	]
}`

func TestPlacesCollectNoKeyReturnsEmpty(t *testing.T) {
	p := NewPlaces(PlacesConfig{})
	res, err := p.Collect(context.Background(), yelpQuery())
	require.NoError(t, err)
	assert.Empty(t, res.Restaurants)
}

func TestPlacesCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Margherita Pizza", r.URL.Query().Get("keyword"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(placesSearchPayload))
	}))
	defer srv.Close()

	p := NewPlaces(PlacesConfig{APIKey: "secret", BaseURL: srv.URL})
	res, err := p.Collect(context.Background(), yelpQuery())
	require.NoError(t, err)

	require.Len(t, res.Restaurants, 2)
	assert.Equal(t, "p1", res.Restaurants[0].GooglePlaceID)

	require.Len(t, res.PriceObservations, 2)
	assert.Equal(t, 16.0, res.PriceObservations[0].ObservedPrice, "price_level 2 maps to 16")
	assert.Equal(t, model.SourceGoogle, res.PriceObservations[0].SourceType)
	// price_level 0 falls back to the rating-derived price: 12 + (3.5-3.5)*4.
	assert.Equal(t, 12.0, res.PriceObservations[1].ObservedPrice)
}

func TestPlacesCollectCuisineFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(placesSearchPayload))
	}))
	defer srv.Close()

	query := yelpQuery()
	query.Filters.Cuisine = []string{"italian"}

	p := NewPlaces(PlacesConfig{APIKey: "secret", BaseURL: srv.URL})
	res, err := p.Collect(context.Background(), query)
	require.NoError(t, err)

	require.Len(t, res.Restaurants, 1)
	assert.Equal(t, "Bella Corner", res.Restaurants[0].Name)
}

func TestPlacesCollectZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	p := NewPlaces(PlacesConfig{APIKey: "secret", BaseURL: srv.URL})
	res, err := p.Collect(context.Background(), yelpQuery())
	require.NoError(t, err)
	assert.Empty(t, res.Restaurants)
}

func TestPlacesCollectQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "OVER_QUERY_LIMIT"}`))
	}))
	defer srv.Close()

	p := NewPlaces(PlacesConfig{APIKey: "secret", BaseURL: srv.URL})
	_, err := p.Collect(context.Background(), yelpQuery())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSourceRateLimited))
}

func TestPlacesCollectDeniedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED"}`))
	}))
	defer srv.Close()

	p := NewPlaces(PlacesConfig{APIKey: "secret", BaseURL: srv.URL})
	_, err := p.Collect(context.Background(), yelpQuery())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSourceUnavailable))
}
