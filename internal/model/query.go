package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidInput indicates a query input missing required fields.
// Rejected before a run is ever created.
var ErrInvalidInput = eris.New("invalid query input")

// PositioningIntent selects which slice of the market band the store
// wants to occupy.
type PositioningIntent string

const (
	IntentValue    PositioningIntent = "Value"
	IntentBalanced PositioningIntent = "Balanced"
	IntentPremium  PositioningIntent = "Premium"
)

// RunStatus represents the lifecycle state of a query run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// QueryFilters narrows which competitor offerings a collector may return.
// Filtering happens at collection time, not downstream.
type QueryFilters struct {
	Cuisine               []string `json:"cuisine,omitempty"`
	ExcludeChains         bool     `json:"excludeChains,omitempty"`
	MinRating             float64  `json:"minRating,omitempty"`
	ServiceStyle          string   `json:"serviceStyle,omitempty"`
	IncludeDeliveryPrices bool     `json:"includeDeliveryPrices,omitempty"`
}

// QueryInput describes one pricing question: a target menu item, a search
// radius around the store, filters and a positioning intent. Immutable
// once a run starts.
type QueryInput struct {
	WorkspaceID       string            `json:"workspaceId"`
	StoreID           string            `json:"storeId"`
	TargetItem        string            `json:"targetItem"`
	TargetCategory    string            `json:"targetCategory,omitempty"`
	TargetVariant     string            `json:"targetVariant,omitempty"`
	RadiusKm          float64           `json:"radiusKm"`
	StoreLat          float64           `json:"storeLat,omitempty"`
	StoreLng          float64           `json:"storeLng,omitempty"`
	Filters           QueryFilters      `json:"filters"`
	PositioningIntent PositioningIntent `json:"positioningIntent"`
	StoreCurrentPrice float64           `json:"storeCurrentPrice,omitempty"`
}

// DefaultWorkspace is used when a caller does not scope the query to a
// named workspace.
const DefaultWorkspace = "default"

// Validate checks required fields and applies defaults.
func (q *QueryInput) Validate() error {
	if q.StoreID == "" {
		return eris.Wrap(ErrInvalidInput, "storeId is required")
	}
	if q.TargetItem == "" {
		return eris.Wrap(ErrInvalidInput, "targetItem is required")
	}
	if q.WorkspaceID == "" {
		q.WorkspaceID = DefaultWorkspace
	}
	if q.RadiusKm <= 0 {
		q.RadiusKm = 5
	}
	switch q.PositioningIntent {
	case IntentValue, IntentBalanced, IntentPremium:
	case "":
		q.PositioningIntent = IntentBalanced
	default:
		return eris.Wrapf(ErrInvalidInput, "unknown positioning intent %q", q.PositioningIntent)
	}
	return nil
}

// QueryRun is one execution of a query. Owned exclusively by the
// pipeline; created once, mutated only through the state machine.
type QueryRun struct {
	ID                  string            `json:"id"`
	Input               QueryInput        `json:"input"`
	TargetItemSignature string            `json:"targetItemSignature"`
	CollectorVersions   map[string]string `json:"collectorVersions"`
	Status              RunStatus         `json:"status"`
	ErrorMessage        string            `json:"errorMessage,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
}
