package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
)

// YelpConfig configures the Yelp directory collector.
type YelpConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxResults  int           `yaml:"max_results" mapstructure:"max_results"`
}

// Yelp collects competitor candidates from the Yelp Fusion business
// search API. Exact menu prices are not exposed by the API, so it
// substitutes a price-tier proxy per observed business.
type Yelp struct {
	cfg     YelpConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewYelp creates the Yelp collector.
func NewYelp(cfg YelpConfig) *Yelp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.yelp.com/v3"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	limit := rate.Limit(cfg.RatePerSec)
	if limit <= 0 {
		limit = 5
	}
	return &Yelp{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (y *Yelp) Name() string    { return "yelp" }
func (y *Yelp) Version() string { return "1.0.0" }

type yelpBusiness struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	Price        string   `json:"price"`
	Transactions []string `json:"transactions"`
	URL          string   `json:"url"`
	Categories   []struct {
		Alias string `json:"alias"`
		Title string `json:"title"`
	} `json:"categories"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
}

// priceTierProxy maps a Yelp price tier to a representative menu price.
// Fallback derives a price from the venue rating when no tier is set.
func priceTierProxy(tier string, rating float64) float64 {
	switch tier {
	case "$":
		return 11
	case "$$":
		return 17
	case "$$$":
		return 26
	case "$$$$":
		return 40
	}
	if rating == 0 {
		rating = 4
	}
	return round2(12 + (rating-3.5)*4)
}

// Collect searches businesses around the store and synthesizes one
// price observation per business from its price tier, plus a delivery
// observation when the business offers delivery and the filter allows.
// Returns an empty result when no API key is configured.
func (y *Yelp) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if y.cfg.APIKey == "" {
		zap.L().Debug("collector: yelp not configured, skipping")
		return &Result{}, nil
	}

	now := time.Now().UTC()
	normalized := normalize.Normalize(query.TargetItem)

	params := url.Values{
		"term":      {query.TargetItem},
		"latitude":  {fmt.Sprintf("%f", query.StoreLat)},
		"longitude": {fmt.Sprintf("%f", query.StoreLng)},
		"radius":    {fmt.Sprintf("%d", radiusMeters(query.RadiusKm))},
		"limit":     {fmt.Sprintf("%d", y.cfg.MaxResults)},
		"sort_by":   {"rating"},
	}
	if len(query.Filters.Cuisine) > 0 {
		params.Set("categories", strings.Join(query.Filters.Cuisine, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		y.cfg.BaseURL+"/businesses/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+y.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := retryDo(ctx, y.http, y.limiter, req)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: search")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrSourceUnavailable, "yelp: search failed (%d)", statusCode)
	}

	var payload struct {
		Businesses []yelpBusiness `json:"businesses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "yelp: decode search response")
	}

	hash := sha256.Sum256(body)
	result := &Result{
		RawPayloads: []RawPayload{{
			Key:         "yelp-search",
			SourceType:  model.SourceYelp,
			ContentType: "application/json",
			StorageRef:  "memory://yelp/search",
			Hash:        hex.EncodeToString(hash[:]),
			Metadata:    map[string]any{"term": query.TargetItem, "count": len(payload.Businesses)},
			CapturedAt:  now,
		}},
	}

	for _, biz := range payload.Businesses {
		if biz.Coordinates.Latitude == 0 && biz.Coordinates.Longitude == 0 {
			continue
		}
		if !PassesRating(query.Filters, biz.Rating) {
			continue
		}
		if query.Filters.ExcludeChains && IsChain(biz.Name) {
			continue
		}
		if !WithinRadius(query, biz.Coordinates.Latitude, biz.Coordinates.Longitude) {
			continue
		}

		address := "Unknown address"
		if len(biz.Location.DisplayAddress) > 0 {
			address = strings.Join(biz.Location.DisplayAddress, ", ")
		}
		restaurant := Restaurant{
			Name:    biz.Name,
			Address: address,
			Lat:     biz.Coordinates.Latitude,
			Lng:     biz.Coordinates.Longitude,
			YelpID:  biz.ID,
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

		sourceURL := biz.URL
		if sourceURL == "" {
			sourceURL = "https://www.yelp.com/biz/" + biz.ID
		}
		base := priceTierProxy(biz.Price, biz.Rating)
		result.PriceObservations = append(result.PriceObservations, PriceObservation{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: normalized,
			SourceType:     model.SourceYelp,
			SourceURL:      sourceURL,
			CapturedAt:     now,
			ObservedPrice:  base,
			Currency:       "USD",
			RawPayloadKey:  "yelp-search",
		})

		offersDelivery := false
		for _, tx := range biz.Transactions {
			if tx == "delivery" {
				offersDelivery = true
				break
			}
		}
		if query.Filters.IncludeDeliveryPrices && offersDelivery {
			result.PriceObservations = append(result.PriceObservations, PriceObservation{
				RestaurantKey:        restaurant.Key(),
				NormalizedName:       normalized,
				SourceType:           model.SourceDelivery,
				SourceURL:            sourceURL,
				CapturedAt:           now,
				ObservedPrice:        round2(base * 1.16),
				Currency:             "USD",
				IsDeliveryPrice:      true,
				DeliveryPlatformName: "Yelp Delivery",
				RawPayloadKey:        "yelp-search",
			})
		}

		result.Reviews = append(result.Reviews, Review{
			RestaurantKey: restaurant.Key(),
			SourceType:    model.SourceYelp,
			CapturedAt:    now,
			Rating:        biz.Rating,
			Text: fmt.Sprintf("Yelp profile: %d reviews, rating %.1f, price tier %s.",
				biz.ReviewCount, biz.Rating, tierOrUnknown(biz.Price)),
			RawPayloadKey: "yelp-search",
		})
	}

	zap.L().Info("collector: yelp collected",
		zap.Int("restaurants", len(result.Restaurants)),
		zap.Int("observations", len(result.PriceObservations)),
	)
	return result, nil
}

func tierOrUnknown(tier string) string {
	if tier == "" {
		return "unknown"
	}
	return tier
}

// radiusMeters converts the query radius to the meters parameter both
// directory APIs expect, capped at their 40km maximum.
func radiusMeters(radiusKm float64) int {
	m := int(radiusKm * 1000)
	if m > 40000 {
		m = 40000
	}
	if m <= 0 {
		m = 1000
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
