// Package sentiment extracts aspect-tagged pricing signal from free-text
// reviews via fixed keyword sets. No learned model.
package sentiment

import (
	"math"
	"strings"

	"github.com/sells-group/pricing-cli/internal/model"
)

var (
	positiveWords = []string{"great", "good", "fresh", "worth", "love", "value"}
	negativeWords = []string{"expensive", "overpriced", "small", "bland", "bad", "slow"}
)

// snippetMax truncates evidence snippets.
const snippetMax = 160

// Result is the aggregated review signal for one restaurant.
type Result struct {
	OverallSentiment float64
	ValueScore       int
	AspectCounts     model.AspectCounts
	Evidence         []string
}

// Analyze classifies each review text against the positive and negative
// keyword sets and tallies the five aspect buckets. A text contributes
// an evidence snippet if it triggers any aspect bucket.
func Analyze(texts []string) Result {
	var positive, negative int
	var counts model.AspectCounts
	var evidence []string

	for _, text := range texts {
		lower := strings.ToLower(text)
		if containsAny(lower, positiveWords) {
			positive++
		}
		if containsAny(lower, negativeWords) {
			negative++
		}

		triggered := false
		if strings.Contains(lower, "overpriced") || strings.Contains(lower, "expensive") {
			counts.Overpriced++
			triggered = true
		}
		if strings.Contains(lower, "value") || strings.Contains(lower, "worth") {
			counts.Value++
			triggered = true
		}
		if strings.Contains(lower, "portion") || strings.Contains(lower, "small") {
			counts.Portion++
			triggered = true
		}
		if strings.Contains(lower, "fresh") || strings.Contains(lower, "quality") {
			counts.Quality++
			triggered = true
		}
		if strings.Contains(lower, "service") || strings.Contains(lower, "staff") {
			counts.Service++
			triggered = true
		}
		if triggered {
			evidence = append(evidence, snippet(text))
		}
	}

	overall := 0.0
	if total := positive + negative; total > 0 {
		overall = math.Round(float64(positive-negative)/float64(total)*100) / 100
	}

	return Result{
		OverallSentiment: overall,
		ValueScore:       counts.Value - counts.Overpriced,
		AspectCounts:     counts,
		Evidence:         evidence,
	}
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func snippet(text string) string {
	if len(text) <= snippetMax {
		return text
	}
	return text[:snippetMax]
}
