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

// DeliveryConfig configures the delivery platform collector.
type DeliveryConfig struct {
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	PlatformName string        `yaml:"platform_name" mapstructure:"platform_name"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSec   float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Delivery collects listed menu prices from a delivery platform's
// storefront API. Delivery prices carry platform markup, so they rank
// lowest in estimator reliability, but they are real numeric prices.
type Delivery struct {
	cfg     DeliveryConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewDelivery creates the delivery platform collector.
func NewDelivery(cfg DeliveryConfig) *Delivery {
	if cfg.PlatformName == "" {
		cfg.PlatformName = "delivery"
	}
	limit := rate.Limit(cfg.RatePerSec)
	if limit <= 0 {
		limit = 5
	}
	return &Delivery{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (d *Delivery) Name() string    { return "delivery" }
func (d *Delivery) Version() string { return "1.0.0" }

type deliveryListing struct {
	StoreName string  `json:"store_name"`
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Rating    float64 `json:"rating"`
	ItemName  string  `json:"item_name"`
	Price     float64 `json:"price"`
	StoreURL  string  `json:"store_url"`
}

// Collect searches the platform for the target item around the store.
// Skipped entirely when the query excludes delivery prices, and returns
// an empty result when no API key is configured.
func (d *Delivery) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if d.cfg.APIKey == "" {
		zap.L().Debug("collector: delivery not configured, skipping")
		return &Result{}, nil
	}
	if !query.Filters.IncludeDeliveryPrices {
		zap.L().Debug("collector: delivery prices excluded by filter, skipping")
		return &Result{}, nil
	}

	now := time.Now().UTC()
	normalized := normalize.Normalize(query.TargetItem)

	params := url.Values{
		"q":      {query.TargetItem},
		"lat":    {fmt.Sprintf("%f", query.StoreLat)},
		"lng":    {fmt.Sprintf("%f", query.StoreLng)},
		"radius": {fmt.Sprintf("%d", radiusMeters(query.RadiusKm))},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.cfg.BaseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: create request")
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)

	body, statusCode, err := retryDo(ctx, d.http, d.limiter, req)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: search")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrSourceUnavailable, "delivery: search failed (%d)", statusCode)
	}

	var payload struct {
		Listings []deliveryListing `json:"listings"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "delivery: decode search response")
	}

	hash := sha256.Sum256(body)
	result := &Result{
		RawPayloads: []RawPayload{{
			Key:         "delivery-search",
			SourceType:  model.SourceDelivery,
			ContentType: "application/json",
			StorageRef:  "memory://" + d.cfg.PlatformName + "/search",
			Hash:        hex.EncodeToString(hash[:]),
			Metadata:    map[string]any{"term": query.TargetItem, "count": len(payload.Listings)},
			CapturedAt:  now,
		}},
	}

	seen := make(map[string]bool)
	for _, listing := range payload.Listings {
		if listing.Price <= 0 {
			continue
		}
		if !PassesRating(query.Filters, listing.Rating) {
			continue
		}
		if query.Filters.ExcludeChains && IsChain(listing.StoreName) {
			continue
		}
		if !WithinRadius(query, listing.Lat, listing.Lng) {
			continue
		}

		restaurant := Restaurant{
			Name:    listing.StoreName,
			Address: listing.Address,
			Lat:     listing.Lat,
			Lng:     listing.Lng,
		}
		if !seen[restaurant.Key()] {
			seen[restaurant.Key()] = true
			result.Restaurants = append(result.Restaurants, restaurant)
		}

		itemName := normalize.Normalize(listing.ItemName)
		if itemName == "" {
			itemName = normalized
		}
		result.MenuItems = append(result.MenuItems, MenuItem{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: itemName,
			Category:       query.TargetCategory,
			Variant:        query.TargetVariant,
		})
		result.PriceObservations = append(result.PriceObservations, PriceObservation{
			RestaurantKey:        restaurant.Key(),
			NormalizedName:       itemName,
			SourceType:           model.SourceDelivery,
			SourceURL:            listing.StoreURL,
			CapturedAt:           now,
			ObservedPrice:        listing.Price,
			Currency:             "USD",
			IsDeliveryPrice:      true,
			DeliveryPlatformName: d.cfg.PlatformName,
			RawPayloadKey:        "delivery-search",
		})
	}

	zap.L().Info("collector: delivery collected",
		zap.Int("restaurants", len(result.Restaurants)),
		zap.Int("observations", len(result.PriceObservations)),
	)
	return result, nil
}
