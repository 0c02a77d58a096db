// Package collector defines the contract for competitive-pricing data
// sources and their standardized result shape. Each implementation
// applies the query's filters at collection time; downstream stages see
// already-filtered data.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Sentinel errors for upstream failures. A collector returning either
// fails the whole run.
var (
	ErrSourceUnavailable = eris.New("source unavailable")
	ErrSourceRateLimited = eris.New("source rate limited")
)

// Restaurant is a candidate competitor venue as reported by one source.
type Restaurant struct {
	Name          string
	Address       string
	Lat           float64
	Lng           float64
	GooglePlaceID string
	YelpID        string
	WebsiteDomain string
}

// Key returns the restaurant's natural key within a result batch.
func (r Restaurant) Key() string {
	return r.Name + "|" + r.Address
}

// MenuItem is an observed competitor offering, keyed to its restaurant
// by the natural key.
type MenuItem struct {
	RestaurantKey  string
	NormalizedName string
	Category       string
	Variant        string
}

// PriceObservation is a price fact for a menu item in a result batch.
type PriceObservation struct {
	RestaurantKey        string
	NormalizedName       string
	SourceType           model.SourceType
	SourceURL            string
	CapturedAt           time.Time
	ObservedPrice        float64
	Currency             string
	IsDeliveryPrice      bool
	DeliveryPlatformName string
	RawPayloadKey        string
}

// Review is a free-text review fact for a restaurant in a result batch.
type Review struct {
	RestaurantKey string
	SourceType    model.SourceType
	CapturedAt    time.Time
	Rating        float64
	Text          string
	RawPayloadKey string
}

// RawPayload is the provenance record for one raw upstream response,
// referenced from observations by its batch-local key.
type RawPayload struct {
	Key         string
	SourceType  model.SourceType
	ContentType string
	StorageRef  string
	Hash        string
	Metadata    map[string]any
	CapturedAt  time.Time
}

// Result is the standardized output of one collector invocation.
type Result struct {
	Restaurants       []Restaurant
	MenuItems         []MenuItem
	PriceObservations []PriceObservation
	Reviews           []Review
	RawPayloads       []RawPayload
}

// Collector turns a query into a standardized result. Implementations
// may perform network I/O and must respect the context. A collector
// with no credentials configured returns an empty result, not an error.
type Collector interface {
	Name() string
	Version() string
	Collect(ctx context.Context, query model.QueryInput) (*Result, error)
}
