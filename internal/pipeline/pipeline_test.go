package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/collector"
	"github.com/sells-group/pricing-cli/internal/config"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/store"
)

// staticCollector returns a fixed result or error, for exercising the
// orchestrator without network I/O.
type staticCollector struct {
	name string
	res  *collector.Result
	err  error
}

func (c *staticCollector) Name() string    { return c.name }
func (c *staticCollector) Version() string { return "0.0.1" }

func (c *staticCollector) Collect(ctx context.Context, query model.QueryInput) (*collector.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.res != nil {
		return c.res, nil
	}
	return &collector.Result{}, nil
}

// recordingStore counts sentiment writes so tests can assert which
// restaurants were analyzed.
type recordingStore struct {
	store.Store
	sentimentRestaurants []string
}

func (r *recordingStore) CreateSentimentMetric(ctx context.Context, m *model.SentimentMetric) error {
	r.sentimentRestaurants = append(r.sentimentRestaurants, m.RestaurantID)
	return r.Store.CreateSentimentMetric(ctx, m)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPipeline(st store.Store, collectors ...collector.Collector) *Pipeline {
	registry := collector.NewRegistry()
	for _, c := range collectors {
		registry.Register(c)
	}
	return New(&config.Config{}, st, registry)
}

func demoInput() model.QueryInput {
	return model.QueryInput{
		StoreID:           "store-1",
		TargetItem:        "Margherita Pizza",
		TargetCategory:    "pizza",
		RadiusKm:          5,
		PositioningIntent: model.IntentBalanced,
		StoreCurrentPrice: 12,
	}
}

func TestCreateQueryRun(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st, collector.NewDemo())

	run, err := p.CreateQueryRun(context.Background(), demoInput())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.Equal(t, "margherita pizza|pizza", run.TargetItemSignature)
	assert.Equal(t, map[string]string{"demo": "1.0.0"}, run.CollectorVersions)
	assert.Equal(t, model.DefaultWorkspace, run.Input.WorkspaceID)
}

func TestCreateQueryRun_InvalidInput(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st, collector.NewDemo())

	_, err := p.CreateQueryRun(context.Background(), model.QueryInput{TargetItem: "Pizza"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidInput))

	// Nothing was persisted.
	runs, err := st.ListQueryRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteQueryRun_Completed(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st, collector.NewDemo())
	ctx := context.Background()

	run, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)
	require.NoError(t, p.ExecuteQueryRun(ctx, run.ID))

	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)

	// All ten demo items match the target, each with two observations.
	estimates, err := st.ListPriceEstimates(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, estimates, 10)
	for _, e := range estimates {
		assert.Greater(t, e.EstimatedInStorePrice, 0.0)
		assert.Greater(t, e.Confidence, 0)
		require.NotNil(t, e.DeliveryMarkupEstimatePct)
		assert.InDelta(t, 18, *e.DeliveryMarkupEstimatePct, 0.5)
	}

	metric, err := st.GetLandscapeMetric(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, metric.DistributionStats.SampleSize)
	assert.Len(t, metric.ValueMapPoints, 10)
	assert.LessOrEqual(t, metric.MarketBands.Below.High, metric.MarketBands.Core.High)
	assert.LessOrEqual(t, metric.MarketBands.Core.High, metric.MarketBands.Above.High)
	assert.Contains(t, metric.Conclusions.Headline, "10 matched offers")
	assert.Contains(t, metric.Conclusions.Recommendation, "Balanced positioning")
	assert.NotNil(t, metric.Conclusions.Trade)
}

func TestExecuteQueryRun_SentimentOnlyForMatchedRestaurants(t *testing.T) {
	base := newTestStore(t)
	rec := &recordingStore{Store: base}
	now := time.Now().UTC()

	// One matching venue, one venue whose only item cannot match.
	matched := collector.Restaurant{Name: "Luigi's", Address: "12 Oak St"}
	unmatched := collector.Restaurant{Name: "Burger Barn", Address: "9 Elm St"}
	res := &collector.Result{
		Restaurants: []collector.Restaurant{matched, unmatched},
		MenuItems: []collector.MenuItem{
			{RestaurantKey: matched.Key(), NormalizedName: "margherita pizza", Category: "pizza"},
			{RestaurantKey: unmatched.Key(), NormalizedName: "double beef burger", Category: "burgers"},
		},
		PriceObservations: []collector.PriceObservation{{
			RestaurantKey:  matched.Key(),
			NormalizedName: "margherita pizza",
			SourceType:     model.SourceWebsite,
			CapturedAt:     now,
			ObservedPrice:  12.5,
			Currency:       "USD",
		}},
		Reviews: []collector.Review{
			{RestaurantKey: matched.Key(), SourceType: model.SourceYelp, CapturedAt: now, Text: "great value"},
			{RestaurantKey: unmatched.Key(), SourceType: model.SourceYelp, CapturedAt: now, Text: "overpriced"},
		},
	}

	p := newTestPipeline(rec, &staticCollector{name: "fake", res: res})
	ctx := context.Background()

	run, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)
	require.NoError(t, p.ExecuteQueryRun(ctx, run.ID))

	require.Len(t, rec.sentimentRestaurants, 1)
}

func TestExecuteQueryRun_ZeroMatchesCompletes(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	venue := collector.Restaurant{Name: "Burger Barn", Address: "9 Elm St"}
	res := &collector.Result{
		Restaurants: []collector.Restaurant{venue},
		MenuItems: []collector.MenuItem{
			{RestaurantKey: venue.Key(), NormalizedName: "double beef burger", Category: "burgers"},
		},
		PriceObservations: []collector.PriceObservation{{
			RestaurantKey:  venue.Key(),
			NormalizedName: "double beef burger",
			SourceType:     model.SourceWebsite,
			CapturedAt:     now,
			ObservedPrice:  9.5,
			Currency:       "USD",
		}},
	}

	p := newTestPipeline(st, &staticCollector{name: "fake", res: res})
	ctx := context.Background()

	run, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)
	require.NoError(t, p.ExecuteQueryRun(ctx, run.ID))

	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	metric, err := st.GetLandscapeMetric(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, metric.DistributionStats.SampleSize)
	assert.Contains(t, metric.Conclusions.Recommendation, "Widen the search radius")
}

func TestExecuteQueryRun_CollectorFailureFailsRun(t *testing.T) {
	st := newTestStore(t)
	failing := &staticCollector{name: "yelp", err: eris.Wrap(collector.ErrSourceUnavailable, "yelp: search status 503")}
	p := newTestPipeline(st, collector.NewDemo(), failing)
	ctx := context.Background()

	run, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)

	execErr := p.ExecuteQueryRun(ctx, run.ID)
	require.Error(t, execErr)
	assert.True(t, eris.Is(execErr, collector.ErrSourceUnavailable))

	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	// The error message is recorded verbatim.
	assert.Equal(t, execErr.Error(), got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestExecuteQueryRun_NoCollectorsEnabled(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st)
	ctx := context.Background()

	run, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)

	execErr := p.ExecuteQueryRun(ctx, run.ID)
	require.Error(t, execErr)
	assert.True(t, eris.Is(execErr, ErrNoCollectorsEnabled))

	// The run never reached RUNNING.
	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, got.Status)
}

func TestExecuteQueryRun_RunNotFound(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st, collector.NewDemo())

	err := p.ExecuteQueryRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrRunNotFound))
}

func TestExecuteQueryRun_ObservationsAccumulateAcrossRuns(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(st, collector.NewDemo())
	ctx := context.Background()

	first, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)
	require.NoError(t, p.ExecuteQueryRun(ctx, first.ID))

	second, err := p.CreateQueryRun(ctx, demoInput())
	require.NoError(t, err)
	require.NoError(t, p.ExecuteQueryRun(ctx, second.ID))

	// Re-collection appends evidence instead of deduping, so the second
	// run estimates over four observations per item.
	items, err := st.ListItemsWithObservations(ctx)
	require.NoError(t, err)
	require.Len(t, items, 10)
	for _, it := range items {
		assert.Len(t, it.Observations, 4)
	}

	// Each run keeps its own matches and estimates.
	firstEstimates, err := st.ListPriceEstimates(ctx, first.ID)
	require.NoError(t, err)
	secondEstimates, err := st.ListPriceEstimates(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, firstEstimates, 10)
	assert.Len(t, secondEstimates, 10)
}
