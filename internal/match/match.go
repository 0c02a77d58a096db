// Package match scores candidate competitor items against a target menu
// item. Single-pass lexical matcher, sized for candidate sets in the
// hundreds.
package match

import (
	"sort"
	"strings"

	"github.com/sells-group/pricing-cli/internal/normalize"
)

// MethodKeywordJaccard tags matches produced by this matcher.
const MethodKeywordJaccard = "keyword+jaccard"

// MinScore is the similarity floor below which candidates are discarded.
const MinScore = 0.25

const (
	keywordBoost  = 0.2
	categoryBoost = 0.1
)

// Target is the item a query run is pricing.
type Target struct {
	Item     string
	Category string
	Variant  string
}

// Candidate is a known competitor item under consideration.
type Candidate struct {
	ID             string
	NormalizedName string
	Category       string
	Variant        string
}

// Result is one scored match, ranked descending by score.
type Result struct {
	CompetitorItemID    string
	TargetItemSignature string
	MatchScore          float64
	MatchMethod         string
}

// Match scores every candidate against the target and returns the ones
// at or above MinScore, sorted descending by score. Ordering on ties is
// stable, so deterministic input order yields deterministic output.
func Match(target Target, candidates []Candidate) []Result {
	signature := normalize.BuildSignature(target.Item, target.Category, target.Variant)
	targetName := normalize.Normalize(target.Item)
	targetTokens := normalize.Tokenize(target.Item)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := jaccard(targetTokens, normalize.Tokenize(c.NormalizedName))
		if targetName != "" && strings.Contains(c.NormalizedName, targetName) {
			score += keywordBoost
		}
		if target.Category != "" && c.Category != "" && strings.EqualFold(c.Category, target.Category) {
			score += categoryBoost
		}
		if score > 1 {
			score = 1
		}
		if score < MinScore {
			continue
		}
		results = append(results, Result{
			CompetitorItemID:    c.ID,
			TargetItemSignature: signature,
			MatchScore:          score,
			MatchMethod:         MethodKeywordJaccard,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})
	return results
}

// jaccard is set intersection over union on token sets, ignoring order
// and duplicates.
func jaccard(a, b []string) float64 {
	as := make(map[string]struct{}, len(a))
	for _, t := range a {
		as[t] = struct{}{}
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		union[t] = struct{}{}
	}
	inter := 0
	for _, t := range b {
		if _, seen := union[t]; !seen {
			union[t] = struct{}{}
			continue
		}
		if _, ok := as[t]; ok {
			// Count each shared token once.
			delete(as, t)
			inter++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}
