package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/pricing-cli/internal/landscape"
	"github.com/sells-group/pricing-cli/internal/model"
)

// Synthesize turns a run's distribution, recommended band and average
// estimate confidence into the narrative conclusions stored on the
// landscape metric.
func Synthesize(run *model.QueryRun, dist model.DistributionStats, band model.Band, avgConfidence float64) model.Conclusions {
	c := model.Conclusions{
		Headline: fmt.Sprintf("Analyzed %d matched offers within %.1f km of store %s.",
			dist.SampleSize, run.Input.RadiusKm, run.Input.StoreID),
		ConfidenceNote: confidenceNote(avgConfidence, dist.SampleSize),
		FilterSummary:  filterSummary(run.Input.Filters),
	}

	if dist.SampleSize == 0 {
		c.Recommendation = "No matched competitor offers found. Widen the search radius or relax the filters and run again."
		return c
	}

	c.Recommendation = fmt.Sprintf("%s positioning suggests a price between $%.2f and $%.2f.",
		run.Input.PositioningIntent, band.Low, band.High)

	if run.Input.StoreCurrentPrice > 0 {
		c.MarketPosition = marketPosition(run.Input.StoreCurrentPrice, dist)
		trade := landscape.TradeUpDown(run.Input.StoreCurrentPrice, band)
		c.Trade = &trade
		c.TradeGuidance = fmt.Sprintf("Reaching the recommended band means a %.1f%% move to its low edge and %.1f%% to its high edge.",
			trade.ToLowPct, trade.ToHighPct)
	}

	return c
}

func marketPosition(current float64, dist model.DistributionStats) string {
	switch {
	case current < dist.Q1:
		return fmt.Sprintf("Current price $%.2f sits below the market core ($%.2f-$%.2f).", current, dist.Q1, dist.Q3)
	case current > dist.Q3:
		return fmt.Sprintf("Current price $%.2f sits above the market core ($%.2f-$%.2f).", current, dist.Q1, dist.Q3)
	default:
		return fmt.Sprintf("Current price $%.2f sits inside the market core ($%.2f-$%.2f).", current, dist.Q1, dist.Q3)
	}
}

func confidenceNote(avg float64, sampleSize int) string {
	if sampleSize == 0 {
		return "No price estimates available; confidence not applicable."
	}
	switch {
	case avg >= 75:
		return fmt.Sprintf("High confidence (avg %.0f/100); estimates are backed by multiple in-store sources.", avg)
	case avg >= 55:
		return fmt.Sprintf("Moderate confidence (avg %.0f/100); consider verifying key competitors before repricing.", avg)
	default:
		return fmt.Sprintf("Low confidence (avg %.0f/100); treat the band as directional and gather more observations.", avg)
	}
}

func filterSummary(f model.QueryFilters) string {
	var parts []string
	if len(f.Cuisine) > 0 {
		parts = append(parts, "cuisine: "+strings.Join(f.Cuisine, ", "))
	}
	if f.MinRating > 0 {
		parts = append(parts, fmt.Sprintf("min rating %.1f", f.MinRating))
	}
	if f.ExcludeChains {
		parts = append(parts, "chains excluded")
	}
	if f.ServiceStyle != "" {
		parts = append(parts, "service style: "+f.ServiceStyle)
	}
	if f.IncludeDeliveryPrices {
		parts = append(parts, "delivery prices included")
	}
	if len(parts) == 0 {
		return "No filters applied."
	}
	return "Filters: " + strings.Join(parts, "; ") + "."
}
