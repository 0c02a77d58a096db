package model

import "time"

// ItemMatch links a query run's target to one competitor item. Matches
// are run-scoped: a later run re-matches the same item with a fresh
// record rather than reusing a prior run's.
type ItemMatch struct {
	ID                  string    `json:"id"`
	QueryRunID          string    `json:"queryRunId"`
	CompetitorItemID    string    `json:"competitorItemId"`
	TargetItemSignature string    `json:"targetItemSignature"`
	MatchScore          float64   `json:"matchScore"`
	MatchMethod         string    `json:"matchMethod"`
	CreatedAt           time.Time `json:"createdAt"`
}

// ConfidenceFactors is the breakdown behind a price estimate's
// confidence score.
type ConfidenceFactors struct {
	NoData         bool    `json:"noData,omitempty"`
	SourceCount    int     `json:"sourceCount,omitempty"`
	Std            float64 `json:"std,omitempty"`
	HasNonDelivery bool    `json:"hasNonDelivery,omitempty"`
}

// PriceEstimate is the confidence-weighted price for one matched item in
// one run. Exists only for matched items with at least one observation.
type PriceEstimate struct {
	ID                        string            `json:"id"`
	QueryRunID                string            `json:"queryRunId"`
	CompetitorItemID          string            `json:"competitorItemId"`
	EstimatedInStorePrice     float64           `json:"estimatedInStorePrice"`
	Confidence                int               `json:"confidence0to100"`
	ConfidenceFactors         ConfidenceFactors `json:"confidenceFactors"`
	DeliveryMarkupEstimatePct *float64          `json:"deliveryMarkupEstimatePct,omitempty"`
	Explanation               string            `json:"explanation"`
	CreatedAt                 time.Time         `json:"createdAt"`
}

// AspectCounts tallies review mentions per pricing-relevant aspect.
type AspectCounts struct {
	Overpriced int `json:"overpriced"`
	Value      int `json:"value"`
	Portion    int `json:"portion"`
	Quality    int `json:"quality"`
	Service    int `json:"service"`
}

// SentimentMetric is the per-restaurant review signal for one run,
// computed only for restaurants with at least one matched item.
type SentimentMetric struct {
	ID               string       `json:"id"`
	QueryRunID       string       `json:"queryRunId"`
	RestaurantID     string       `json:"restaurantId"`
	OverallSentiment float64      `json:"overallSentiment"`
	ValueScore       int          `json:"valueScore"`
	AspectCounts     AspectCounts `json:"aspectCounts"`
	EvidenceSnippets []string     `json:"evidenceSnippets,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// DistributionStats summarizes the price distribution of a run's
// estimates using linear-interpolation percentiles.
type DistributionStats struct {
	Min        float64 `json:"min"`
	Q1         float64 `json:"q1"`
	Median     float64 `json:"median"`
	Q3         float64 `json:"q3"`
	Max        float64 `json:"max"`
	SampleSize int     `json:"sampleSize"`
}

// Band is a priced interval.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// MarketBands partitions the market for display: below-market, core and
// above-market, plus the recommended band for the query's intent.
type MarketBands struct {
	Below       Band `json:"below"`
	Core        Band `json:"core"`
	Above       Band `json:"above"`
	Recommended Band `json:"recommended"`
}

// TradeMetrics is the percentage delta from the store's current price to
// each edge of the recommended band. A negative ToLowPct means the
// current price already exceeds the low edge.
type TradeMetrics struct {
	ToLowPct  float64 `json:"toLowPct"`
	ToHighPct float64 `json:"toHighPct"`
}

// ValueMapPoint positions one matched competitor on the price/confidence
// value map.
type ValueMapPoint struct {
	CompetitorItemID string  `json:"competitorItemId"`
	Price            float64 `json:"price"`
	Confidence       int     `json:"confidence"`
}

// Conclusions is the synthesized narrative result of a run.
type Conclusions struct {
	Headline       string        `json:"headline"`
	Recommendation string        `json:"recommendation"`
	MarketPosition string        `json:"marketPosition,omitempty"`
	ConfidenceNote string        `json:"confidenceNote"`
	FilterSummary  string        `json:"filterSummary"`
	Trade          *TradeMetrics `json:"trade,omitempty"`
	TradeGuidance  string        `json:"tradeGuidance,omitempty"`
}

// LandscapeMetric is the market-wide result of a run. Exactly one per
// completed run; its distribution covers strictly that run's estimates.
type LandscapeMetric struct {
	ID                  string            `json:"id"`
	QueryRunID          string            `json:"queryRunId"`
	TargetItemSignature string            `json:"targetItemSignature"`
	DistributionStats   DistributionStats `json:"distributionStats"`
	MarketBands         MarketBands       `json:"marketBands"`
	ValueMapPoints      []ValueMapPoint   `json:"valueMapPoints,omitempty"`
	Conclusions         Conclusions       `json:"conclusions"`
	CreatedAt           time.Time         `json:"createdAt"`
}
