package collector

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
)

// ManualConfig configures the manual-entry collector.
type ManualConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ManualEntry is one operator-entered observation in the entries file.
type ManualEntry struct {
	Restaurant string    `yaml:"restaurant"`
	Address    string    `yaml:"address"`
	Lat        float64   `yaml:"lat"`
	Lng        float64   `yaml:"lng"`
	Item       string    `yaml:"item"`
	Category   string    `yaml:"category"`
	Variant    string    `yaml:"variant"`
	Price      float64   `yaml:"price"`
	Currency   string    `yaml:"currency"`
	ObservedAt time.Time `yaml:"observed_at"`
	Review     string    `yaml:"review"`
	Rating     float64   `yaml:"rating"`
}

type manualFile struct {
	Entries []ManualEntry `yaml:"entries"`
}

// Manual loads operator-entered price and review observations from a
// YAML file. Field visits and phone checks end up here.
type Manual struct {
	cfg ManualConfig
}

// NewManual creates the manual-entry collector.
func NewManual(cfg ManualConfig) *Manual {
	return &Manual{cfg: cfg}
}

func (m *Manual) Name() string    { return "manual" }
func (m *Manual) Version() string { return "1.0.0" }

// Collect reads the entries file and returns observations relevant to
// the query target. Returns an empty result when no file is configured.
func (m *Manual) Collect(ctx context.Context, query model.QueryInput) (*Result, error) {
	if m.cfg.Path == "" {
		zap.L().Debug("collector: manual entries not configured, skipping")
		return &Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceUnavailable, "manual: read %s: %v", m.cfg.Path, err)
	}
	var file manualFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "manual: parse %s", m.cfg.Path)
	}

	now := time.Now().UTC()
	result := &Result{}
	seen := make(map[string]bool)

	for _, entry := range file.Entries {
		if query.Filters.ExcludeChains && IsChain(entry.Restaurant) {
			continue
		}
		if (entry.Lat != 0 || entry.Lng != 0) && !WithinRadius(query, entry.Lat, entry.Lng) {
			continue
		}

		restaurant := Restaurant{
			Name:    entry.Restaurant,
			Address: entry.Address,
			Lat:     entry.Lat,
			Lng:     entry.Lng,
		}
		if !seen[restaurant.Key()] {
			seen[restaurant.Key()] = true
			result.Restaurants = append(result.Restaurants, restaurant)
		}

		if entry.Item != "" && entry.Price > 0 {
			itemName := normalize.Normalize(entry.Item)
			observedAt := entry.ObservedAt
			if observedAt.IsZero() {
				observedAt = now
			}
			currency := entry.Currency
			if currency == "" {
				currency = "USD"
			}
			result.MenuItems = append(result.MenuItems, MenuItem{
				RestaurantKey:  restaurant.Key(),
				NormalizedName: itemName,
				Category:       entry.Category,
				Variant:        entry.Variant,
			})
			result.PriceObservations = append(result.PriceObservations, PriceObservation{
				RestaurantKey:  restaurant.Key(),
				NormalizedName: itemName,
				SourceType:     model.SourceManual,
				SourceURL:      "manual://" + m.cfg.Path,
				CapturedAt:     observedAt,
				ObservedPrice:  entry.Price,
				Currency:       currency,
			})
		}

		if entry.Review != "" {
			result.Reviews = append(result.Reviews, Review{
				RestaurantKey: restaurant.Key(),
				SourceType:    model.SourceManual,
				CapturedAt:    now,
				Rating:        entry.Rating,
				Text:          entry.Review,
			})
		}
	}

	zap.L().Info("collector: manual collected",
		zap.Int("entries", len(file.Entries)),
		zap.Int("observations", len(result.PriceObservations)),
	)
	return result, nil
}
