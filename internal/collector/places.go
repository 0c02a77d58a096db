package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
)

// PlacesConfig configures the Google Places directory collector.
type PlacesConfig struct {
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Places collects competitor candidates from a Places-style nearby
// search. Like Yelp, the API exposes an ordinal price level rather than
// menu prices, so observations use a price-level proxy.
type Places struct {
	cfg     PlacesConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewPlaces creates the Places collector.
func NewPlaces(cfg PlacesConfig) *Places {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com/maps/api/place"
	}
	limit := rate.Limit(cfg.RatePerSec)
	if limit <= 0 {
		limit = 5
	}
	return &Places{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *Places) Name() string    { return "google-places" }
func (p *Places) Version() string { return "1.0.0" }

type placeResult struct {
	PlaceID    string   `json:"place_id"`
	Name       string   `json:"name"`
	Vicinity   string   `json:"vicinity"`
	Rating     float64  `json:"rating"`
	PriceLevel int      `json:"price_level"`
	Types      []string `json:"types"`
	Geometry   struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// priceLevelProxy maps the 0-4 price_level ordinal to a representative
// menu price.
func priceLevelProxy(level int, rating float64) float64 {
	switch level {
	case 1:
		return 10
	case 2:
		return 16
	case 3:
		return 25
	case 4:
		return 38
	}
	if rating == 0 {
		rating = 4
	}
	return round2(12 + (rating-3.5)*4)
}

// Collect performs a nearby search around the store location. Returns
// an empty result when no API key is configured.
func (p *Places) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if p.cfg.APIKey == "" {
		zap.L().Debug("collector: places not configured, skipping")
		return &Result{}, nil
	}

	now := time.Now().UTC()
	normalized := normalize.Normalize(query.TargetItem)

	params := url.Values{
		"keyword":  {query.TargetItem},
		"location": {fmt.Sprintf("%f,%f", query.StoreLat, query.StoreLng)},
		"radius":   {fmt.Sprintf("%d", radiusMeters(query.RadiusKm))},
		"type":     {"restaurant"},
		"key":      {p.cfg.APIKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.BaseURL+"/nearbysearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	body, statusCode, err := retryDo(ctx, p.http, p.limiter, req)
	if err != nil {
		return nil, eris.Wrap(err, "places: nearby search")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrSourceUnavailable, "places: search failed (%d)", statusCode)
	}

	var payload struct {
		Status  string        `json:"status"`
		Results []placeResult `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "places: decode search response")
	}
	if payload.Status != "OK" && payload.Status != "ZERO_RESULTS" {
		if payload.Status == "OVER_QUERY_LIMIT" {
			return nil, eris.Wrapf(ErrSourceRateLimited, "places: status %s", payload.Status)
		}
		return nil, eris.Wrapf(ErrSourceUnavailable, "places: status %s", payload.Status)
	}

	hash := sha256.Sum256(body)
	result := &Result{
		RawPayloads: []RawPayload{{
			Key:         "places-search",
			SourceType:  model.SourceGoogle,
			ContentType: "application/json",
			StorageRef:  "memory://places/nearbysearch",
			Hash:        hex.EncodeToString(hash[:]),
			Metadata:    map[string]any{"keyword": query.TargetItem, "count": len(payload.Results)},
			CapturedAt:  now,
		}},
	}

	for _, place := range payload.Results {
		if !PassesRating(query.Filters, place.Rating) {
			continue
		}
		if query.Filters.ExcludeChains && IsChain(place.Name) {
			continue
		}
		if !MatchesCuisine(query.Filters, place.Types) {
			continue
		}
		if !WithinRadius(query, place.Geometry.Location.Lat, place.Geometry.Location.Lng) {
			continue
		}

		restaurant := Restaurant{
			Name:          place.Name,
			Address:       place.Vicinity,
			Lat:           place.Geometry.Location.Lat,
			Lng:           place.Geometry.Location.Lng,
			GooglePlaceID: place.PlaceID,
		}
		result.Restaurants = append(result.Restaurants, restaurant)

		category := query.TargetCategory
		if category == "" {
			category = "menu-item"
		}
		result.MenuItems = append(result.MenuItems, MenuItem{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: normalized,
			Category:       category,
			Variant:        query.TargetVariant,
		})

		result.PriceObservations = append(result.PriceObservations, PriceObservation{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: normalized,
			SourceType:     model.SourceGoogle,
			SourceURL:      "https://www.google.com/maps/place/?q=place_id:" + place.PlaceID,
			CapturedAt:     now,
			ObservedPrice:  priceLevelProxy(place.PriceLevel, place.Rating),
			Currency:       "USD",
			RawPayloadKey:  "places-search",
		})

		result.Reviews = append(result.Reviews, Review{
			RestaurantKey: restaurant.Key(),
			SourceType:    model.SourceGoogle,
			CapturedAt:    now,
			Rating:        place.Rating,
			Text: fmt.Sprintf("Google profile: rating %.1f, price level %d.",
				place.Rating, place.PriceLevel),
			RawPayloadKey: "places-search",
		})
	}

	zap.L().Info("collector: places collected",
		zap.Int("restaurants", len(result.Restaurants)),
	)
	return result, nil
}
