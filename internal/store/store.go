// Package store defines the persistence interface for the pricing
// pipeline and its SQLite and Postgres implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// ErrRunNotFound indicates a query-run id unknown to the store. Caller
// error; no state is mutated.
var ErrRunNotFound = eris.New("query run not found")

// RunFilter specifies criteria for listing query runs.
type RunFilter struct {
	StoreID    string                  `json:"store_id,omitempty"`
	TargetItem string                  `json:"target_item,omitempty"`
	Intent     model.PositioningIntent `json:"intent,omitempty"`
	Status     model.RunStatus         `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// Store is the persistent entity store the pipeline writes through.
// Restaurant upsert is atomic on the (name, address) natural key against
// any concurrent writer; observations are append-only.
type Store interface {
	// Query runs
	CreateQueryRun(ctx context.Context, run *model.QueryRun) error
	GetQueryRun(ctx context.Context, runID string) (*model.QueryRun, error)
	ListQueryRuns(ctx context.Context, filter RunFilter) ([]model.QueryRun, error)
	MarkQueryRunRunning(ctx context.Context, runID string) error
	MarkQueryRunCompleted(ctx context.Context, runID string) error
	MarkQueryRunFailed(ctx context.Context, runID string, errorMessage string) error

	// Entities
	UpsertRestaurant(ctx context.Context, r *model.CompetitorRestaurant) (*model.CompetitorRestaurant, error)
	GetOrCreateItem(ctx context.Context, item *model.CompetitorItem) (*model.CompetitorItem, error)
	AppendPriceObservation(ctx context.Context, obs *model.PriceObservation) error
	AppendReviewObservation(ctx context.Context, obs *model.ReviewObservation) error
	CreateRawPayload(ctx context.Context, ref *model.RawPayloadRef) error

	// Reads feeding matching, estimation and sentiment
	ListItemsWithObservations(ctx context.Context) ([]model.ItemWithObservations, error)
	ListRestaurantsWithReviews(ctx context.Context, restaurantIDs []string) ([]model.RestaurantWithReviews, error)

	// Run-scoped analytics records
	CreateItemMatch(ctx context.Context, m *model.ItemMatch) error
	CreatePriceEstimate(ctx context.Context, e *model.PriceEstimate) error
	ListPriceEstimates(ctx context.Context, runID string) ([]model.PriceEstimate, error)
	CreateSentimentMetric(ctx context.Context, m *model.SentimentMetric) error
	CreateLandscapeMetric(ctx context.Context, m *model.LandscapeMetric) error
	GetLandscapeMetric(ctx context.Context, runID string) (*model.LandscapeMetric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
