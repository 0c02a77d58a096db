// Package pipeline orchestrates a pricing query run: fan-out collection,
// entity reconciliation, item matching, price estimation, review
// sentiment, market distribution, and conclusion synthesis.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricing-cli/internal/collector"
	"github.com/sells-group/pricing-cli/internal/config"
	"github.com/sells-group/pricing-cli/internal/estimate"
	"github.com/sells-group/pricing-cli/internal/landscape"
	"github.com/sells-group/pricing-cli/internal/match"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/normalize"
	"github.com/sells-group/pricing-cli/internal/sentiment"
	"github.com/sells-group/pricing-cli/internal/store"
)

// ErrNoCollectorsEnabled indicates an empty collector registry. The run
// stays PENDING and never reaches RUNNING.
var ErrNoCollectorsEnabled = eris.New("no collectors enabled")

// maxEvidenceSnippets caps the review excerpts stored per restaurant.
const maxEvidenceSnippets = 3

// Pipeline runs pricing queries against a store and a fixed set of
// collectors. The registry is read-only for the lifetime of a run.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	registry *collector.Registry
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, registry *collector.Registry) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		registry: registry,
	}
}

// CreateQueryRun validates the input, snapshots it with the derived
// target signature and collector versions, and persists a PENDING run.
func (p *Pipeline) CreateQueryRun(ctx context.Context, input model.QueryInput) (*model.QueryRun, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	run := &model.QueryRun{
		Input:               input,
		TargetItemSignature: normalize.BuildSignature(input.TargetItem, input.TargetCategory, input.TargetVariant),
		CollectorVersions:   p.registry.Versions(),
		Status:              model.RunStatusPending,
	}
	if err := p.store.CreateQueryRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create query run")
	}

	zap.L().Info("pipeline: query run created",
		zap.String("run_id", run.ID),
		zap.String("store_id", input.StoreID),
		zap.String("target_item", input.TargetItem),
		zap.String("signature", run.TargetItemSignature),
	)
	return run, nil
}

// ExecuteQueryRun drives a PENDING run to a terminal state. Any error
// after the RUNNING transition marks the run FAILED with the error's
// message recorded verbatim; writes already committed are not rolled
// back.
func (p *Pipeline) ExecuteQueryRun(ctx context.Context, runID string) error {
	run, err := p.store.GetQueryRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load query run")
	}
	if p.registry.Len() == 0 {
		return ErrNoCollectorsEnabled
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("target_item", run.Input.TargetItem))
	log.Info("pipeline: starting query run")

	if err := p.store.MarkQueryRunRunning(ctx, runID); err != nil {
		return eris.Wrap(err, "pipeline: mark running")
	}

	if err := p.execute(ctx, run); err != nil {
		log.Error("pipeline: query run failed", zap.Error(err))
		if markErr := p.store.MarkQueryRunFailed(ctx, runID, err.Error()); markErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(markErr))
		}
		return err
	}

	if err := p.store.MarkQueryRunCompleted(ctx, runID); err != nil {
		return eris.Wrap(err, "pipeline: mark completed")
	}
	log.Info("pipeline: query run completed")
	return nil
}

func (p *Pipeline) execute(ctx context.Context, run *model.QueryRun) error {
	log := zap.L().With(zap.String("run_id", run.ID))

	// ===== Collection: fan out over enabled collectors, all or nothing.
	collectors := p.registry.Enabled()
	results := make([]*collector.Result, len(collectors))

	g, gCtx := errgroup.WithContext(ctx)
	for i, c := range collectors {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			res, err := c.Collect(gCtx, run.Input)
			if err != nil {
				return eris.Wrapf(err, "%s", c.Name())
			}
			results[i] = res
			log.Info("pipeline: collector finished",
				zap.String("collector", c.Name()),
				zap.Int("restaurants", len(res.Restaurants)),
				zap.Int("price_observations", len(res.PriceObservations)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// ===== Reconciliation: sequential writes, in registry order.
	recon := newReconciler(p.store)
	for i, res := range results {
		if err := recon.apply(ctx, res); err != nil {
			return eris.Wrapf(err, "reconcile %s", collectors[i].Name())
		}
	}

	// ===== Matching: target against every known competitor item.
	items, err := p.store.ListItemsWithObservations(ctx)
	if err != nil {
		return eris.Wrap(err, "list items")
	}
	candidates := make([]match.Candidate, len(items))
	byItemID := make(map[string]model.ItemWithObservations, len(items))
	for i, it := range items {
		candidates[i] = match.Candidate{
			ID:             it.Item.ID,
			NormalizedName: it.Item.NormalizedName,
			Category:       it.Item.Category,
			Variant:        it.Item.Variant,
		}
		byItemID[it.Item.ID] = it
	}

	matches := match.Match(match.Target{
		Item:     run.Input.TargetItem,
		Category: run.Input.TargetCategory,
		Variant:  run.Input.TargetVariant,
	}, candidates)
	log.Info("pipeline: matching done", zap.Int("candidates", len(candidates)), zap.Int("matches", len(matches)))

	// ===== Estimation: matched items with at least one observation.
	now := time.Now().UTC()
	matchedRestaurants := map[string]bool{}
	for _, m := range matches {
		if err := p.store.CreateItemMatch(ctx, &model.ItemMatch{
			QueryRunID:          run.ID,
			CompetitorItemID:    m.CompetitorItemID,
			TargetItemSignature: m.TargetItemSignature,
			MatchScore:          m.MatchScore,
			MatchMethod:         m.MatchMethod,
		}); err != nil {
			return eris.Wrap(err, "create item match")
		}

		it := byItemID[m.CompetitorItemID]
		matchedRestaurants[it.Restaurant.ID] = true
		if len(it.Observations) == 0 {
			continue
		}

		est := estimate.ComputePriceEstimate(estimate.PointsFromObservations(it.Observations), now)
		if err := p.store.CreatePriceEstimate(ctx, &model.PriceEstimate{
			QueryRunID:                run.ID,
			CompetitorItemID:          m.CompetitorItemID,
			EstimatedInStorePrice:     est.EstimatedInStorePrice,
			Confidence:                est.Confidence,
			ConfidenceFactors:         est.ConfidenceFactors,
			DeliveryMarkupEstimatePct: est.DeliveryMarkupEstimatePct,
			Explanation:               est.Explanation,
		}); err != nil {
			return eris.Wrap(err, "create price estimate")
		}
	}

	// ===== Sentiment: restaurants owning at least one matched item.
	restaurantIDs := make([]string, 0, len(matchedRestaurants))
	for id := range matchedRestaurants {
		restaurantIDs = append(restaurantIDs, id)
	}
	withReviews, err := p.store.ListRestaurantsWithReviews(ctx, restaurantIDs)
	if err != nil {
		return eris.Wrap(err, "list restaurants with reviews")
	}
	for _, rw := range withReviews {
		texts := make([]string, len(rw.Reviews))
		for i, rev := range rw.Reviews {
			texts[i] = rev.Text
		}
		res := sentiment.Analyze(texts)
		evidence := res.Evidence
		if len(evidence) > maxEvidenceSnippets {
			evidence = evidence[:maxEvidenceSnippets]
		}
		if err := p.store.CreateSentimentMetric(ctx, &model.SentimentMetric{
			QueryRunID:       run.ID,
			RestaurantID:     rw.Restaurant.ID,
			OverallSentiment: res.OverallSentiment,
			ValueScore:       res.ValueScore,
			AspectCounts:     res.AspectCounts,
			EvidenceSnippets: evidence,
		}); err != nil {
			return eris.Wrap(err, "create sentiment metric")
		}
	}

	// ===== Landscape: distribution strictly over this run's estimates.
	estimates, err := p.store.ListPriceEstimates(ctx, run.ID)
	if err != nil {
		return eris.Wrap(err, "list price estimates")
	}
	prices := make([]float64, len(estimates))
	confidenceSum := 0
	points := make([]model.ValueMapPoint, len(estimates))
	for i, e := range estimates {
		prices[i] = e.EstimatedInStorePrice
		confidenceSum += e.Confidence
		points[i] = model.ValueMapPoint{
			CompetitorItemID: e.CompetitorItemID,
			Price:            e.EstimatedInStorePrice,
			Confidence:       e.Confidence,
		}
	}

	dist := landscape.ComputeDistribution(prices)
	band := landscape.RecommendedBand(dist, run.Input.PositioningIntent)
	avgConfidence := 0.0
	if len(estimates) > 0 {
		avgConfidence = float64(confidenceSum) / float64(len(estimates))
	}
	conclusions := Synthesize(run, dist, band, avgConfidence)

	if err := p.store.CreateLandscapeMetric(ctx, &model.LandscapeMetric{
		QueryRunID:          run.ID,
		TargetItemSignature: run.TargetItemSignature,
		DistributionStats:   dist,
		MarketBands:         landscape.MarketBands(dist, band),
		ValueMapPoints:      points,
		Conclusions:         conclusions,
	}); err != nil {
		return eris.Wrap(err, "create landscape metric")
	}

	return nil
}
