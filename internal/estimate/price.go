// Package estimate turns raw price observations for a matched competitor
// item into a single confidence-weighted in-store price.
package estimate

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/pricing-cli/internal/model"
)

// sourceReliability weights each source type's observations. Storefront
// websites are authoritative; delivery platforms carry platform markup
// and rank lowest.
var sourceReliability = map[model.SourceType]float64{
	model.SourceWebsite:  1.0,
	model.SourceManual:   0.9,
	model.SourceGoogle:   0.8,
	model.SourceYelp:     0.75,
	model.SourceDemo:     0.7,
	model.SourceDelivery: 0.55,
}

const (
	defaultReliability = 0.5
	recencyFloor       = 0.3
	recencyHalfDays    = 30.0
)

// PricePoint is one observation feeding an estimate.
type PricePoint struct {
	SourceType model.SourceType
	Price      float64
	CapturedAt time.Time
	IsDelivery bool
}

// Estimate is the computed in-store price with its confidence breakdown.
type Estimate struct {
	EstimatedInStorePrice     float64
	Confidence                int
	ConfidenceFactors         model.ConfidenceFactors
	DeliveryMarkupEstimatePct *float64
	Explanation               string
}

// ComputePriceEstimate weighs each point by recency and source
// reliability and returns the weighted mean price with a 0-100
// confidence. Empty input yields the zero estimate with confidence 0.
func ComputePriceEstimate(points []PricePoint, now time.Time) Estimate {
	if len(points) == 0 {
		return Estimate{
			ConfidenceFactors: model.ConfidenceFactors{NoData: true},
			Explanation:       "No observations found.",
		}
	}

	weights := make([]float64, len(points))
	var weightedSum, totalWeight float64
	for i, p := range points {
		ageDays := now.Sub(p.CapturedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recency := math.Max(recencyFloor, math.Exp(-ageDays/recencyHalfDays))
		reliability, ok := sourceReliability[p.SourceType]
		if !ok {
			reliability = defaultReliability
		}
		weights[i] = recency * reliability
		weightedSum += p.Price * weights[i]
		totalWeight += weights[i]
	}
	est := weightedSum / totalWeight

	// Unweighted population standard deviation around the estimate.
	var variance float64
	for _, p := range points {
		variance += (p.Price - est) * (p.Price - est)
	}
	variance /= float64(len(points))
	std := math.Sqrt(variance)

	distinct := make(map[model.SourceType]struct{}, len(points))
	hasNonDelivery := false
	var deliverySum, nonDeliverySum float64
	var deliveryN, nonDeliveryN int
	for _, p := range points {
		distinct[p.SourceType] = struct{}{}
		if p.IsDelivery {
			deliverySum += p.Price
			deliveryN++
		} else {
			hasNonDelivery = true
			nonDeliverySum += p.Price
			nonDeliveryN++
		}
	}
	sourceCount := len(distinct)

	deliveryBonus := -8.0
	if hasNonDelivery {
		deliveryBonus = 10.0
	}
	confidence := int(math.Round(100 - std*8 + float64(sourceCount)*8 + deliveryBonus))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	var markup *float64
	if deliveryN > 0 && nonDeliveryN > 0 {
		deliveryAvg := deliverySum / float64(deliveryN)
		nonDeliveryAvg := nonDeliverySum / float64(nonDeliveryN)
		pct := round2((deliveryAvg - nonDeliveryAvg) / nonDeliveryAvg * 100)
		markup = &pct
	}

	inclusion := "without"
	if hasNonDelivery {
		inclusion = "includes"
	}

	return Estimate{
		EstimatedInStorePrice: round2(est),
		Confidence:            confidence,
		ConfidenceFactors: model.ConfidenceFactors{
			SourceCount:    sourceCount,
			Std:            round2(std),
			HasNonDelivery: hasNonDelivery,
		},
		DeliveryMarkupEstimatePct: markup,
		Explanation: fmt.Sprintf("Confidence %d based on %d sources, %s non-delivery price and variance %.2f.",
			confidence, sourceCount, inclusion, std),
	}
}

// PointsFromObservations adapts stored observations to estimator input.
func PointsFromObservations(obs []model.PriceObservation) []PricePoint {
	points := make([]PricePoint, len(obs))
	for i, o := range obs {
		points[i] = PricePoint{
			SourceType: o.SourceType,
			Price:      o.ObservedPrice,
			CapturedAt: o.CapturedAt,
			IsDelivery: o.IsDeliveryPrice,
		}
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
