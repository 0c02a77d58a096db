package model

import "time"

// SourceType identifies the kind of upstream a fact was observed from.
type SourceType string

const (
	SourceWebsite  SourceType = "WEBSITE"
	SourceGoogle   SourceType = "GOOGLE"
	SourceYelp     SourceType = "YELP"
	SourceDelivery SourceType = "DELIVERY"
	SourceManual   SourceType = "MANUAL"
	SourceDemo     SourceType = "DEMO"
)

// CompetitorRestaurant is a competitor venue. Identity is the natural
// key (name, address) and is shared across query runs: two differently
// named listings of the same physical restaurant stay separate entities.
type CompetitorRestaurant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	GooglePlaceID string    `json:"googlePlaceId,omitempty"`
	YelpID        string    `json:"yelpId,omitempty"`
	WebsiteDomain string    `json:"websiteDomain,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NaturalKey returns the dedup key for a restaurant listing.
func (r *CompetitorRestaurant) NaturalKey() string {
	return r.Name + "|" + r.Address
}

// CompetitorItem is one offering on a competitor's menu. Identity is
// (restaurant, normalized name, category, variant).
type CompetitorItem struct {
	ID             string    `json:"id"`
	RestaurantID   string    `json:"restaurantId"`
	NormalizedName string    `json:"normalizedName"`
	Category       string    `json:"category,omitempty"`
	Variant        string    `json:"variant,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PriceObservation is a single observed price for an item. Append-only;
// repeated collection of the same fact accumulates evidence.
type PriceObservation struct {
	ID                   string     `json:"id"`
	ItemID               string     `json:"itemId"`
	SourceType           SourceType `json:"sourceType"`
	SourceURL            string     `json:"sourceUrl"`
	CapturedAt           time.Time  `json:"capturedAt"`
	ObservedPrice        float64    `json:"observedPrice"`
	Currency             string     `json:"currency"`
	IsDeliveryPrice      bool       `json:"isDeliveryPrice"`
	DeliveryPlatformName string     `json:"deliveryPlatformName,omitempty"`
	RawPayloadRefID      string     `json:"rawPayloadRefId,omitempty"`
}

// ReviewObservation is a free-text review captured for a restaurant.
// Append-only.
type ReviewObservation struct {
	ID              string     `json:"id"`
	RestaurantID    string     `json:"restaurantId"`
	SourceType      SourceType `json:"sourceType"`
	CapturedAt      time.Time  `json:"capturedAt"`
	Rating          float64    `json:"rating,omitempty"`
	Text            string     `json:"text"`
	RawPayloadRefID string     `json:"rawPayloadRefId,omitempty"`
}

// RawPayloadRef records provenance for a collector's raw upstream
// response. Immutable once written.
type RawPayloadRef struct {
	ID          string         `json:"id"`
	SourceType  SourceType     `json:"sourceType"`
	ContentType string         `json:"contentType"`
	StorageRef  string         `json:"storageRef"`
	Hash        string         `json:"hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CapturedAt  time.Time      `json:"capturedAt"`
}

// ItemWithObservations bundles an item with its price history and owning
// restaurant, as returned by the store in one read.
type ItemWithObservations struct {
	Item         CompetitorItem       `json:"item"`
	Restaurant   CompetitorRestaurant `json:"restaurant"`
	Observations []PriceObservation   `json:"observations"`
}

// RestaurantWithReviews bundles a restaurant with its reviews.
type RestaurantWithReviews struct {
	Restaurant CompetitorRestaurant `json:"restaurant"`
	Reviews    []ReviewObservation  `json:"reviews"`
}
