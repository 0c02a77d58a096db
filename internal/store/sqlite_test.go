package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testQueryRun(storeID, targetItem string) *model.QueryRun {
	return &model.QueryRun{
		Input: model.QueryInput{
			WorkspaceID:       model.DefaultWorkspace,
			StoreID:           storeID,
			TargetItem:        targetItem,
			RadiusKm:          5,
			PositioningIntent: model.IntentBalanced,
		},
		TargetItemSignature: "margherita pizza",
		CollectorVersions:   map[string]string{"demo": "1.0.0"},
		Status:              model.RunStatusPending,
	}
}

// --- Query runs ---

func TestSQLite_CreateAndGetQueryRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Margherita Pizza")
	require.NoError(t, st.CreateQueryRun(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "store-1", got.Input.StoreID)
	assert.Equal(t, "Margherita Pizza", got.Input.TargetItem)
	assert.Equal(t, "margherita pizza", got.TargetItemSignature)
	assert.Equal(t, map[string]string{"demo": "1.0.0"}, got.CollectorVersions)
	assert.Equal(t, model.RunStatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLite_GetQueryRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetQueryRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunNotFound))
}

func TestSQLite_RunStatusTransitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Pad Thai")
	require.NoError(t, st.CreateQueryRun(ctx, run))

	require.NoError(t, st.MarkQueryRunRunning(ctx, run.ID))
	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, st.MarkQueryRunCompleted(ctx, run.ID))
	got, err = st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_MarkQueryRunFailed_RecordsMessage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Pad Thai")
	require.NoError(t, st.CreateQueryRun(ctx, run))

	require.NoError(t, st.MarkQueryRunFailed(ctx, run.ID, "yelp: source unavailable"))
	got, err := st.GetQueryRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "yelp: source unavailable", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_MarkRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, err := range []error{
		st.MarkQueryRunRunning(ctx, "missing"),
		st.MarkQueryRunCompleted(ctx, "missing"),
		st.MarkQueryRunFailed(ctx, "missing", "boom"),
	} {
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrRunNotFound))
	}
}

func TestSQLite_ListQueryRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testQueryRun("store-a", "Margherita Pizza")
	b := testQueryRun("store-b", "Pad Thai")
	b.Input.PositioningIntent = model.IntentPremium
	require.NoError(t, st.CreateQueryRun(ctx, a))
	require.NoError(t, st.CreateQueryRun(ctx, b))
	require.NoError(t, st.MarkQueryRunCompleted(ctx, b.ID))

	runs, err := st.ListQueryRuns(ctx, RunFilter{StoreID: "store-a"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.ID, runs[0].ID)

	runs, err = st.ListQueryRuns(ctx, RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, b.ID, runs[0].ID)

	runs, err = st.ListQueryRuns(ctx, RunFilter{TargetItem: "Pad Thai", Intent: model.IntentPremium})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, b.ID, runs[0].ID)

	runs, err = st.ListQueryRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.ListQueryRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// --- Entities ---

func TestSQLite_UpsertRestaurant_NaturalKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{
		Name:    "Luigi's Trattoria",
		Address: "12 Oak St",
		Lat:     37.77,
		Lng:     -122.41,
		YelpID:  "luigis-sf",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, "luigis-sf", first.YelpID)

	// Same natural key from another source: entity is reused, coords
	// refresh, and the known yelp id survives a blank.
	second, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{
		Name:          "Luigi's Trattoria",
		Address:       "12 Oak St",
		Lat:           37.78,
		Lng:           -122.42,
		GooglePlaceID: "gp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 37.78, second.Lat)
	assert.Equal(t, "luigis-sf", second.YelpID)
	assert.Equal(t, "gp-1", second.GooglePlaceID)
}

func TestSQLite_UpsertRestaurant_DifferentListingsStaySeparate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)
	b, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's Trattoria", Address: "12 Oak St"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSQLite_GetOrCreateItem(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)

	first, err := st.GetOrCreateItem(ctx, &model.CompetitorItem{
		RestaurantID:   r.ID,
		NormalizedName: "margherita pizza",
		Category:       "pizza",
	})
	require.NoError(t, err)

	again, err := st.GetOrCreateItem(ctx, &model.CompetitorItem{
		RestaurantID:   r.ID,
		NormalizedName: "margherita pizza",
		Category:       "pizza",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	large, err := st.GetOrCreateItem(ctx, &model.CompetitorItem{
		RestaurantID:   r.ID,
		NormalizedName: "margherita pizza",
		Category:       "pizza",
		Variant:        "large",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, large.ID)
}

func TestSQLite_ObservationsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)
	item, err := st.GetOrCreateItem(ctx, &model.CompetitorItem{RestaurantID: r.ID, NormalizedName: "margherita pizza"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.AppendPriceObservation(ctx, &model.PriceObservation{
		ItemID:        item.ID,
		SourceType:    model.SourceWebsite,
		SourceURL:     "https://luigis.example/menu",
		CapturedAt:    now,
		ObservedPrice: 12.5,
		Currency:      "USD",
	}))
	require.NoError(t, st.AppendPriceObservation(ctx, &model.PriceObservation{
		ItemID:               item.ID,
		SourceType:           model.SourceDelivery,
		CapturedAt:           now,
		ObservedPrice:        14.5,
		Currency:             "USD",
		IsDeliveryPrice:      true,
		DeliveryPlatformName: "DemoDash",
	}))

	items, err := st.ListItemsWithObservations(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].Item.ID)
	assert.Equal(t, "Luigi's", items[0].Restaurant.Name)
	require.Len(t, items[0].Observations, 2)
	assert.Equal(t, 12.5, items[0].Observations[0].ObservedPrice)
	assert.True(t, items[0].Observations[1].IsDeliveryPrice)
	assert.Equal(t, "DemoDash", items[0].Observations[1].DeliveryPlatformName)
}

func TestSQLite_ListRestaurantsWithReviews(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)
	b, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Thai Garden", Address: "9 Elm St"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.AppendReviewObservation(ctx, &model.ReviewObservation{
		RestaurantID: a.ID,
		SourceType:   model.SourceYelp,
		CapturedAt:   now,
		Rating:       4.5,
		Text:         "great value and generous portions",
	}))
	require.NoError(t, st.AppendReviewObservation(ctx, &model.ReviewObservation{
		RestaurantID: b.ID,
		SourceType:   model.SourceGoogle,
		CapturedAt:   now,
		Text:         "overpriced for what you get",
	}))

	// Only the requested restaurants come back.
	got, err := st.ListRestaurantsWithReviews(ctx, []string{a.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].Restaurant.ID)
	require.Len(t, got[0].Reviews, 1)
	assert.Equal(t, 4.5, got[0].Reviews[0].Rating)

	got, err = st.ListRestaurantsWithReviews(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_CreateRawPayload(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := &model.RawPayloadRef{
		SourceType:  model.SourceYelp,
		ContentType: "application/json",
		StorageRef:  "yelp-search",
		Hash:        "abc123",
		Metadata:    map[string]any{"term": "pizza"},
		CapturedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateRawPayload(ctx, ref))
	assert.NotEmpty(t, ref.ID)
}

// --- Analytics records ---

func TestSQLite_PriceEstimatesRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Margherita Pizza")
	require.NoError(t, st.CreateQueryRun(ctx, run))
	r, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)
	item, err := st.GetOrCreateItem(ctx, &model.CompetitorItem{RestaurantID: r.ID, NormalizedName: "margherita pizza"})
	require.NoError(t, err)

	require.NoError(t, st.CreateItemMatch(ctx, &model.ItemMatch{
		QueryRunID:          run.ID,
		CompetitorItemID:    item.ID,
		TargetItemSignature: run.TargetItemSignature,
		MatchScore:          0.82,
		MatchMethod:         "keyword+jaccard",
	}))

	markup := 14.29
	require.NoError(t, st.CreatePriceEstimate(ctx, &model.PriceEstimate{
		QueryRunID:                run.ID,
		CompetitorItemID:          item.ID,
		EstimatedInStorePrice:     12.75,
		Confidence:                84,
		ConfidenceFactors:         model.ConfidenceFactors{SourceCount: 3, Std: 0.4, HasNonDelivery: true},
		DeliveryMarkupEstimatePct: &markup,
		Explanation:               "Confidence 84 based on 3 sources, with non-delivery price and variance 0.40.",
	}))
	require.NoError(t, st.CreatePriceEstimate(ctx, &model.PriceEstimate{
		QueryRunID:            run.ID,
		CompetitorItemID:      item.ID,
		EstimatedInStorePrice: 11.2,
		Confidence:            60,
		ConfidenceFactors:     model.ConfidenceFactors{SourceCount: 1, HasNonDelivery: true},
	}))

	got, err := st.ListPriceEstimates(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12.75, got[0].EstimatedInStorePrice)
	assert.Equal(t, 84, got[0].Confidence)
	assert.Equal(t, 3, got[0].ConfidenceFactors.SourceCount)
	require.NotNil(t, got[0].DeliveryMarkupEstimatePct)
	assert.InDelta(t, 14.29, *got[0].DeliveryMarkupEstimatePct, 1e-9)
	assert.Nil(t, got[1].DeliveryMarkupEstimatePct)

	// Estimates are run-scoped.
	other, err := st.ListPriceEstimates(ctx, "another-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_SentimentMetric(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Margherita Pizza")
	require.NoError(t, st.CreateQueryRun(ctx, run))
	r, err := st.UpsertRestaurant(ctx, &model.CompetitorRestaurant{Name: "Luigi's", Address: "12 Oak St"})
	require.NoError(t, err)

	m := &model.SentimentMetric{
		QueryRunID:       run.ID,
		RestaurantID:     r.ID,
		OverallSentiment: 0.5,
		ValueScore:       2,
		AspectCounts:     model.AspectCounts{Value: 2, Portion: 1},
		EvidenceSnippets: []string{"great value and generous portions"},
	}
	require.NoError(t, st.CreateSentimentMetric(ctx, m))
	assert.NotEmpty(t, m.ID)
}

func TestSQLite_LandscapeMetricRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := testQueryRun("store-1", "Margherita Pizza")
	require.NoError(t, st.CreateQueryRun(ctx, run))

	metric := &model.LandscapeMetric{
		QueryRunID:          run.ID,
		TargetItemSignature: run.TargetItemSignature,
		DistributionStats:   model.DistributionStats{Min: 10, Q1: 11.25, Median: 12.5, Q3: 13.75, Max: 15, SampleSize: 6},
		MarketBands: model.MarketBands{
			Below:       model.Band{Low: 10, High: 11.25},
			Core:        model.Band{Low: 11.25, High: 13.75},
			Above:       model.Band{Low: 13.75, High: 15},
			Recommended: model.Band{Low: 12, High: 13},
		},
		ValueMapPoints: []model.ValueMapPoint{{CompetitorItemID: "item-1", Price: 12.5, Confidence: 80}},
		Conclusions: model.Conclusions{
			Headline:       "Analyzed 6 matched offers within 5.0 km.",
			Recommendation: "Price between $12.00 and $13.00.",
			ConfidenceNote: "High confidence in market estimates.",
			FilterSummary:  "no filters",
		},
	}
	require.NoError(t, st.CreateLandscapeMetric(ctx, metric))

	got, err := st.GetLandscapeMetric(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, metric.DistributionStats, got.DistributionStats)
	assert.Equal(t, metric.MarketBands, got.MarketBands)
	assert.Equal(t, metric.ValueMapPoints, got.ValueMapPoints)
	assert.Equal(t, metric.Conclusions, got.Conclusions)

	_, err = st.GetLandscapeMetric(ctx, "missing-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunNotFound))
}
