package landscape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pricing-cli/internal/model"
)

func TestComputeDistribution(t *testing.T) {
	d := ComputeDistribution([]float64{10, 11, 12, 13, 14, 15})

	assert.Equal(t, 6, d.SampleSize)
	assert.Equal(t, 10.0, d.Min)
	assert.Equal(t, 15.0, d.Max)
	assert.InDelta(t, 12.5, d.Median, 1e-9)
	assert.InDelta(t, 11.25, d.Q1, 1e-9)
	assert.InDelta(t, 13.75, d.Q3, 1e-9)
}

func TestComputeDistributionUnsortedInput(t *testing.T) {
	d := ComputeDistribution([]float64{15, 10, 13, 11, 14, 12})
	assert.InDelta(t, 12.5, d.Median, 1e-9)
	assert.Equal(t, 10.0, d.Min)
	assert.Equal(t, 15.0, d.Max)
}

func TestComputeDistributionEmpty(t *testing.T) {
	d := ComputeDistribution(nil)
	assert.Equal(t, model.DistributionStats{}, d)
	assert.Zero(t, d.SampleSize)
}

func TestComputeDistributionSinglePrice(t *testing.T) {
	d := ComputeDistribution([]float64{12})
	assert.Equal(t, 1, d.SampleSize)
	assert.Equal(t, 12.0, d.Min)
	assert.Equal(t, 12.0, d.Q1)
	assert.Equal(t, 12.0, d.Median)
	assert.Equal(t, 12.0, d.Q3)
	assert.Equal(t, 12.0, d.Max)
}

func TestRecommendedBandMonotonicByIntent(t *testing.T) {
	d := ComputeDistribution([]float64{8, 10, 12, 14, 18, 22})

	value := RecommendedBand(d, model.IntentValue)
	balanced := RecommendedBand(d, model.IntentBalanced)
	premium := RecommendedBand(d, model.IntentPremium)

	assert.LessOrEqual(t, value.Low, balanced.Low)
	assert.LessOrEqual(t, balanced.Low, premium.Low)
	assert.LessOrEqual(t, value.High, balanced.High)
	assert.LessOrEqual(t, balanced.High, premium.High)

	// Value band anchors at q1; Balanced picks up where Value ends.
	assert.Equal(t, d.Q1, value.Low)
	assert.Equal(t, value.High, balanced.Low)
	assert.Equal(t, balanced.High, premium.Low)
}

func TestMarketBands(t *testing.T) {
	d := ComputeDistribution([]float64{10, 11, 12, 13, 14, 15})
	rec := RecommendedBand(d, model.IntentBalanced)
	bands := MarketBands(d, rec)

	assert.Equal(t, d.Min, bands.Below.Low)
	assert.Equal(t, d.Q1, bands.Below.High)
	assert.Equal(t, d.Q1, bands.Core.Low)
	assert.Equal(t, d.Q3, bands.Core.High)
	assert.Equal(t, d.Q3, bands.Above.Low)
	assert.Equal(t, d.Max, bands.Above.High)
	assert.Equal(t, rec, bands.Recommended)
}

func TestTradeUpDown(t *testing.T) {
	trade := TradeUpDown(12, model.Band{Low: 11, High: 13})

	assert.Less(t, trade.ToLowPct, 0.0, "current price exceeds the low edge")
	assert.Greater(t, trade.ToHighPct, 0.0)
	assert.InDelta(t, -8.33, trade.ToLowPct, 0.01)
	assert.InDelta(t, 8.33, trade.ToHighPct, 0.01)
}
