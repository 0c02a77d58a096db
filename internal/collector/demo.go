package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
)

// demoCompetitors are the deterministic synthetic venues produced by
// the demo collector.
var demoCompetitors = []string{
	"Urban Oven", "Pasta Grove", "Bella Corner", "Harvest Plate", "Sunset Trattoria",
	"Riverside Kitchen", "North Fork", "Olive Field", "Rustic Flame", "Market Spoon",
}

// Demo synthesizes a deterministic competitor landscape around the
// query target. Used for demos and pipeline integration tests; enabled
// by config flag, never by default.
type Demo struct{}

// NewDemo creates the demo collector.
func NewDemo() *Demo { return &Demo{} }

func (d *Demo) Name() string    { return "demo" }
func (d *Demo) Version() string { return "1.0.0" }

// Collect returns ten synthetic competitors with website and delivery
// observations and alternating review texts.
func (d *Demo) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	target := normalize.Normalize(query.TargetItem)
	category := query.TargetCategory
	if category == "" {
		category = "entree"
	}

	result := &Result{
		RawPayloads: []RawPayload{{
			Key:         "demo-snapshot",
			SourceType:  model.SourceDemo,
			ContentType: "application/json",
			StorageRef:  "seed://demo/collector",
			Hash:        "demohashv1",
			Metadata:    map[string]any{"restaurants": len(demoCompetitors)},
			CapturedAt:  now,
		}},
	}

	for idx, name := range demoCompetitors {
		restaurant := Restaurant{
			Name:          name,
			Address:       fmt.Sprintf("%d Main St", 100+idx),
			Lat:           37.77 + float64(idx)*0.002,
			Lng:           -122.42 + float64(idx)*0.002,
			WebsiteDomain: strings.ReplaceAll(strings.ToLower(name), " ", "") + ".com",
		}
		result.Restaurants = append(result.Restaurants, restaurant)

		itemName := target
		if idx%3 == 0 {
			itemName = target + " special"
		}
		result.MenuItems = append(result.MenuItems, MenuItem{
			RestaurantKey:  restaurant.Key(),
			NormalizedName: itemName,
			Category:       category,
			Variant:        query.TargetVariant,
		})

		base := 10 + float64(idx)*0.8
		result.PriceObservations = append(result.PriceObservations,
			PriceObservation{
				RestaurantKey:  restaurant.Key(),
				NormalizedName: itemName,
				SourceType:     model.SourceWebsite,
				SourceURL:      "https://" + restaurant.WebsiteDomain + "/menu",
				CapturedAt:     now,
				ObservedPrice:  round2(base),
				Currency:       "USD",
				RawPayloadKey:  "demo-snapshot",
			},
			PriceObservation{
				RestaurantKey:        restaurant.Key(),
				NormalizedName:       itemName,
				SourceType:           model.SourceDelivery,
				SourceURL:            "https://delivery.example/" + name,
				CapturedAt:           now,
				ObservedPrice:        round2(base * 1.18),
				Currency:             "USD",
				IsDeliveryPrice:      true,
				DeliveryPlatformName: "DemoDash",
				RawPayloadKey:        "demo-snapshot",
			},
		)

		text := "Great value and fresh quality ingredients."
		if idx%2 != 0 {
			text = "Tasty but slightly overpriced for the portion size."
		}
		result.Reviews = append(result.Reviews, Review{
			RestaurantKey: restaurant.Key(),
			SourceType:    model.SourceDemo,
			CapturedAt:    now,
			Rating:        4.1 + float64(idx%4)*0.2,
			Text:          text,
			RawPayloadKey: "demo-snapshot",
		})
	}

	return result, nil
}
