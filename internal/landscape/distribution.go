// Package landscape computes market-wide price distribution statistics
// and positioning bands over a run's estimates.
package landscape

import (
	"math"
	"sort"

	"github.com/sells-group/pricing-cli/internal/model"
)

// ComputeDistribution returns quartile statistics over the given prices
// using linear-interpolation percentiles. Empty input yields all-zero
// stats with SampleSize 0.
func ComputeDistribution(prices []float64) model.DistributionStats {
	if len(prices) == 0 {
		return model.DistributionStats{}
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	return model.DistributionStats{
		Min:        sorted[0],
		Q1:         percentile(sorted, 0.25),
		Median:     percentile(sorted, 0.5),
		Q3:         percentile(sorted, 0.75),
		Max:        sorted[len(sorted)-1],
		SampleSize: len(prices),
	}
}

// percentile interpolates linearly between the floor and ceil indices of
// (n-1)*p on a value-sorted sequence.
func percentile(sorted []float64, p float64) float64 {
	idx := float64(len(sorted)-1) * p
	low := int(math.Floor(idx))
	high := int(math.Ceil(idx))
	if low == high {
		return sorted[low]
	}
	return sorted[low] + (sorted[high]-sorted[low])*(idx-float64(low))
}

// RecommendedBand derives the price band for a positioning intent.
// Value sits in the lower quartile, Balanced straddles the median,
// Premium reaches toward the observed maximum.
func RecommendedBand(d model.DistributionStats, intent model.PositioningIntent) model.Band {
	p40 := d.Q1 + (d.Median-d.Q1)*0.6
	p60 := d.Median + (d.Q3-d.Median)*0.4
	p85 := d.Q3 + (d.Max-d.Q3)*0.4

	switch intent {
	case model.IntentValue:
		return model.Band{Low: d.Q1, High: p40}
	case model.IntentPremium:
		return model.Band{Low: p60, High: p85}
	default:
		return model.Band{Low: p40, High: p60}
	}
}

// MarketBands partitions the distribution for display: below-market up
// to q1, core between the quartiles, above-market from q3, plus the
// recommended band.
func MarketBands(d model.DistributionStats, recommended model.Band) model.MarketBands {
	return model.MarketBands{
		Below:       model.Band{Low: d.Min, High: d.Q1},
		Core:        model.Band{Low: d.Q1, High: d.Q3},
		Above:       model.Band{Low: d.Q3, High: d.Max},
		Recommended: recommended,
	}
}

// TradeUpDown computes the percentage delta from the current price to
// each band edge. Negative ToLowPct means the current price already
// exceeds the low edge.
func TradeUpDown(currentPrice float64, band model.Band) model.TradeMetrics {
	return model.TradeMetrics{
		ToLowPct:  (band.Low - currentPrice) / currentPrice * 100,
		ToHighPct: (band.High - currentPrice) / currentPrice * 100,
	}
}
