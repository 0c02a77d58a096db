package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pricing-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_runs (
	id                    TEXT PRIMARY KEY,
	input                 TEXT NOT NULL,
	target_item_signature TEXT NOT NULL,
	collector_versions    TEXT NOT NULL DEFAULT '{}',
	status                TEXT NOT NULL DEFAULT 'PENDING',
	error_message         TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at          DATETIME
);

CREATE TABLE IF NOT EXISTS competitor_restaurants (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL,
	lat             REAL NOT NULL DEFAULT 0,
	lng             REAL NOT NULL DEFAULT 0,
	google_place_id TEXT NOT NULL DEFAULT '',
	yelp_id         TEXT NOT NULL DEFAULT '',
	website_domain  TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS competitor_items (
	id              TEXT PRIMARY KEY,
	restaurant_id   TEXT NOT NULL REFERENCES competitor_restaurants(id),
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	variant         TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (restaurant_id, normalized_name, category, variant)
);

CREATE TABLE IF NOT EXISTS price_observations (
	id                     TEXT PRIMARY KEY,
	item_id                TEXT NOT NULL REFERENCES competitor_items(id),
	source_type            TEXT NOT NULL,
	source_url             TEXT NOT NULL DEFAULT '',
	captured_at            DATETIME NOT NULL,
	observed_price         REAL NOT NULL,
	currency               TEXT NOT NULL DEFAULT 'USD',
	is_delivery_price      INTEGER NOT NULL DEFAULT 0,
	delivery_platform_name TEXT NOT NULL DEFAULT '',
	raw_payload_ref_id     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS review_observations (
	id                 TEXT PRIMARY KEY,
	restaurant_id      TEXT NOT NULL REFERENCES competitor_restaurants(id),
	source_type        TEXT NOT NULL,
	captured_at        DATETIME NOT NULL,
	rating             REAL NOT NULL DEFAULT 0,
	text               TEXT NOT NULL,
	raw_payload_ref_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_payloads (
	id           TEXT PRIMARY KEY,
	source_type  TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	storage_ref  TEXT NOT NULL,
	hash         TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	captured_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS item_matches (
	id                    TEXT PRIMARY KEY,
	query_run_id          TEXT NOT NULL REFERENCES query_runs(id),
	competitor_item_id    TEXT NOT NULL REFERENCES competitor_items(id),
	target_item_signature TEXT NOT NULL,
	match_score           REAL NOT NULL,
	match_method          TEXT NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS price_estimates (
	id                       TEXT PRIMARY KEY,
	query_run_id             TEXT NOT NULL REFERENCES query_runs(id),
	competitor_item_id       TEXT NOT NULL REFERENCES competitor_items(id),
	estimated_in_store_price REAL NOT NULL,
	confidence               INTEGER NOT NULL,
	confidence_factors       TEXT NOT NULL DEFAULT '{}',
	delivery_markup_pct      REAL,
	explanation              TEXT NOT NULL DEFAULT '',
	created_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sentiment_metrics (
	id                TEXT PRIMARY KEY,
	query_run_id      TEXT NOT NULL REFERENCES query_runs(id),
	restaurant_id     TEXT NOT NULL REFERENCES competitor_restaurants(id),
	overall_sentiment REAL NOT NULL,
	value_score       INTEGER NOT NULL,
	aspect_counts     TEXT NOT NULL DEFAULT '{}',
	evidence_snippets TEXT NOT NULL DEFAULT '[]',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS landscape_metrics (
	id                    TEXT PRIMARY KEY,
	query_run_id          TEXT NOT NULL UNIQUE REFERENCES query_runs(id),
	target_item_signature TEXT NOT NULL,
	distribution_stats    TEXT NOT NULL,
	market_bands          TEXT NOT NULL,
	value_map_points      TEXT NOT NULL DEFAULT '[]',
	conclusions           TEXT NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_query_runs_status ON query_runs(status);
CREATE INDEX IF NOT EXISTS idx_items_restaurant ON competitor_items(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_price_obs_item ON price_observations(item_id);
CREATE INDEX IF NOT EXISTS idx_review_obs_restaurant ON review_observations(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_matches_run ON item_matches(query_run_id);
CREATE INDEX IF NOT EXISTS idx_estimates_run ON price_estimates(query_run_id);
CREATE INDEX IF NOT EXISTS idx_sentiment_run ON sentiment_metrics(query_run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateQueryRun(ctx context.Context, run *model.QueryRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}

	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal query input")
	}
	versionsJSON, err := json.Marshal(run.CollectorVersions)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal collector versions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_runs (id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(inputJSON), run.TargetItemSignature, string(versionsJSON),
		string(run.Status), run.ErrorMessage, now, now,
	)
	return eris.Wrap(err, "sqlite: insert query run")
}

func (s *SQLiteStore) GetQueryRun(ctx context.Context, runID string) (*model.QueryRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at, completed_at
		 FROM query_runs WHERE id = ?`,
		runID,
	)
	return scanQueryRun(row, runID)
}

func (s *SQLiteStore) ListQueryRuns(ctx context.Context, filter RunFilter) ([]model.QueryRun, error) {
	query := `SELECT id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at, completed_at
		 FROM query_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.StoreID != "" {
		query += ` AND json_extract(input, '$.storeId') = ?`
		args = append(args, filter.StoreID)
	}
	if filter.TargetItem != "" {
		query += ` AND json_extract(input, '$.targetItem') = ?`
		args = append(args, filter.TargetItem)
	}
	if filter.Intent != "" {
		query += ` AND json_extract(input, '$.positioningIntent') = ?`
		args = append(args, string(filter.Intent))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list query runs")
	}
	defer rows.Close()

	var runs []model.QueryRun
	for rows.Next() {
		r, err := scanQueryRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list query runs iterate")
}

func (s *SQLiteStore) MarkQueryRunRunning(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusRunning), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run running %s", runID)
	}
	return checkRunAffected(res, runID)
}

func (s *SQLiteStore) MarkQueryRunCompleted(ctx context.Context, runID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_runs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run completed %s", runID)
	}
	return checkRunAffected(res, runID)
}

func (s *SQLiteStore) MarkQueryRunFailed(ctx context.Context, runID string, errorMessage string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_runs SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errorMessage, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run failed %s", runID)
	}
	return checkRunAffected(res, runID)
}

// UpsertRestaurant inserts a restaurant or, when the (name, address)
// natural key already exists, refreshes its mutable fields. Known
// upstream ids are never overwritten with blanks.
func (s *SQLiteStore) UpsertRestaurant(ctx context.Context, r *model.CompetitorRestaurant) (*model.CompetitorRestaurant, error) {
	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO competitor_restaurants (id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name, address) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			google_place_id = COALESCE(NULLIF(excluded.google_place_id, ''), competitor_restaurants.google_place_id),
			yelp_id = COALESCE(NULLIF(excluded.yelp_id, ''), competitor_restaurants.yelp_id),
			website_domain = COALESCE(NULLIF(excluded.website_domain, ''), competitor_restaurants.website_domain),
			updated_at = excluded.updated_at
		 RETURNING id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at`,
		id, r.Name, r.Address, r.Lat, r.Lng, r.GooglePlaceID, r.YelpID, r.WebsiteDomain, now, now,
	)

	var out model.CompetitorRestaurant
	err := row.Scan(&out.ID, &out.Name, &out.Address, &out.Lat, &out.Lng,
		&out.GooglePlaceID, &out.YelpID, &out.WebsiteDomain, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert restaurant %s", r.NaturalKey())
	}
	return &out, nil
}

// GetOrCreateItem resolves an item by its (restaurant, normalized name,
// category, variant) identity, creating it on first sight.
func (s *SQLiteStore) GetOrCreateItem(ctx context.Context, item *model.CompetitorItem) (*model.CompetitorItem, error) {
	id := item.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	// The no-op DO UPDATE makes RETURNING fire on conflict as well.
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO competitor_items (id, restaurant_id, normalized_name, category, variant, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (restaurant_id, normalized_name, category, variant) DO UPDATE SET
			normalized_name = excluded.normalized_name
		 RETURNING id, restaurant_id, normalized_name, category, variant, created_at`,
		id, item.RestaurantID, item.NormalizedName, item.Category, item.Variant, now,
	)

	var out model.CompetitorItem
	err := row.Scan(&out.ID, &out.RestaurantID, &out.NormalizedName, &out.Category, &out.Variant, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get or create item %s", item.NormalizedName)
	}
	return &out, nil
}

func (s *SQLiteStore) AppendPriceObservation(ctx context.Context, obs *model.PriceObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_observations (id, item_id, source_type, source_url, captured_at, observed_price, currency, is_delivery_price, delivery_platform_name, raw_payload_ref_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.ItemID, string(obs.SourceType), obs.SourceURL, obs.CapturedAt.UTC(),
		obs.ObservedPrice, obs.Currency, obs.IsDeliveryPrice, obs.DeliveryPlatformName, obs.RawPayloadRefID,
	)
	return eris.Wrap(err, "sqlite: insert price observation")
}

func (s *SQLiteStore) AppendReviewObservation(ctx context.Context, obs *model.ReviewObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_observations (id, restaurant_id, source_type, captured_at, rating, text, raw_payload_ref_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.RestaurantID, string(obs.SourceType), obs.CapturedAt.UTC(),
		obs.Rating, obs.Text, obs.RawPayloadRefID,
	)
	return eris.Wrap(err, "sqlite: insert review observation")
}

func (s *SQLiteStore) CreateRawPayload(ctx context.Context, ref *model.RawPayloadRef) error {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	metaJSON, err := json.Marshal(ref.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_payloads (id, source_type, content_type, storage_ref, hash, metadata, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, string(ref.SourceType), ref.ContentType, ref.StorageRef, ref.Hash, string(metaJSON), ref.CapturedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert raw payload")
}

func (s *SQLiteStore) ListItemsWithObservations(ctx context.Context) ([]model.ItemWithObservations, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.restaurant_id, i.normalized_name, i.category, i.variant, i.created_at,
		        r.id, r.name, r.address, r.lat, r.lng, r.google_place_id, r.yelp_id, r.website_domain, r.created_at, r.updated_at
		 FROM competitor_items i
		 JOIN competitor_restaurants r ON r.id = i.restaurant_id
		 ORDER BY i.created_at, i.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	var out []model.ItemWithObservations
	index := map[string]int{}
	for rows.Next() {
		var iw model.ItemWithObservations
		err := rows.Scan(
			&iw.Item.ID, &iw.Item.RestaurantID, &iw.Item.NormalizedName, &iw.Item.Category, &iw.Item.Variant, &iw.Item.CreatedAt,
			&iw.Restaurant.ID, &iw.Restaurant.Name, &iw.Restaurant.Address, &iw.Restaurant.Lat, &iw.Restaurant.Lng,
			&iw.Restaurant.GooglePlaceID, &iw.Restaurant.YelpID, &iw.Restaurant.WebsiteDomain,
			&iw.Restaurant.CreatedAt, &iw.Restaurant.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		index[iw.Item.ID] = len(out)
		out = append(out, iw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list items iterate")
	}

	obsRows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, source_type, source_url, captured_at, observed_price, currency, is_delivery_price, delivery_platform_name, raw_payload_ref_id
		 FROM price_observations ORDER BY captured_at, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price observations")
	}
	defer obsRows.Close()

	for obsRows.Next() {
		var o model.PriceObservation
		err := obsRows.Scan(&o.ID, &o.ItemID, &o.SourceType, &o.SourceURL, &o.CapturedAt,
			&o.ObservedPrice, &o.Currency, &o.IsDeliveryPrice, &o.DeliveryPlatformName, &o.RawPayloadRefID)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price observation")
		}
		if idx, ok := index[o.ItemID]; ok {
			out[idx].Observations = append(out[idx].Observations, o)
		}
	}
	return out, eris.Wrap(obsRows.Err(), "sqlite: list price observations iterate")
}

func (s *SQLiteStore) ListRestaurantsWithReviews(ctx context.Context, restaurantIDs []string) ([]model.RestaurantWithReviews, error) {
	if len(restaurantIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(restaurantIDs)), ",")
	args := make([]any, len(restaurantIDs))
	for i, id := range restaurantIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at
		 FROM competitor_restaurants WHERE id IN (%s) ORDER BY created_at, id`, placeholders),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list restaurants")
	}
	defer rows.Close()

	var out []model.RestaurantWithReviews
	index := map[string]int{}
	for rows.Next() {
		var rw model.RestaurantWithReviews
		err := rows.Scan(&rw.Restaurant.ID, &rw.Restaurant.Name, &rw.Restaurant.Address,
			&rw.Restaurant.Lat, &rw.Restaurant.Lng, &rw.Restaurant.GooglePlaceID,
			&rw.Restaurant.YelpID, &rw.Restaurant.WebsiteDomain,
			&rw.Restaurant.CreatedAt, &rw.Restaurant.UpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan restaurant")
		}
		index[rw.Restaurant.ID] = len(out)
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list restaurants iterate")
	}

	revRows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, restaurant_id, source_type, captured_at, rating, text, raw_payload_ref_id
		 FROM review_observations WHERE restaurant_id IN (%s) ORDER BY captured_at, id`, placeholders),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review observations")
	}
	defer revRows.Close()

	for revRows.Next() {
		var rev model.ReviewObservation
		err := revRows.Scan(&rev.ID, &rev.RestaurantID, &rev.SourceType, &rev.CapturedAt,
			&rev.Rating, &rev.Text, &rev.RawPayloadRefID)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review observation")
		}
		if idx, ok := index[rev.RestaurantID]; ok {
			out[idx].Reviews = append(out[idx].Reviews, rev)
		}
	}
	return out, eris.Wrap(revRows.Err(), "sqlite: list review observations iterate")
}

func (s *SQLiteStore) CreateItemMatch(ctx context.Context, m *model.ItemMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_matches (id, query_run_id, competitor_item_id, target_item_signature, match_score, match_method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.QueryRunID, m.CompetitorItemID, m.TargetItemSignature, m.MatchScore, m.MatchMethod, m.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert item match")
}

func (s *SQLiteStore) CreatePriceEstimate(ctx context.Context, e *model.PriceEstimate) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()
	factorsJSON, err := json.Marshal(e.ConfidenceFactors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal confidence factors")
	}
	var markup any
	if e.DeliveryMarkupEstimatePct != nil {
		markup = *e.DeliveryMarkupEstimatePct
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO price_estimates (id, query_run_id, competitor_item_id, estimated_in_store_price, confidence, confidence_factors, delivery_markup_pct, explanation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QueryRunID, e.CompetitorItemID, e.EstimatedInStorePrice, e.Confidence,
		string(factorsJSON), markup, e.Explanation, e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert price estimate")
}

func (s *SQLiteStore) ListPriceEstimates(ctx context.Context, runID string) ([]model.PriceEstimate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_run_id, competitor_item_id, estimated_in_store_price, confidence, confidence_factors, delivery_markup_pct, explanation, created_at
		 FROM price_estimates WHERE query_run_id = ? ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price estimates")
	}
	defer rows.Close()

	var out []model.PriceEstimate
	for rows.Next() {
		var e model.PriceEstimate
		var factorsJSON string
		var markup sql.NullFloat64
		err := rows.Scan(&e.ID, &e.QueryRunID, &e.CompetitorItemID, &e.EstimatedInStorePrice,
			&e.Confidence, &factorsJSON, &markup, &e.Explanation, &e.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price estimate")
		}
		if err := json.Unmarshal([]byte(factorsJSON), &e.ConfidenceFactors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal confidence factors")
		}
		if markup.Valid {
			v := markup.Float64
			e.DeliveryMarkupEstimatePct = &v
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list price estimates iterate")
}

func (s *SQLiteStore) CreateSentimentMetric(ctx context.Context, m *model.SentimentMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	countsJSON, err := json.Marshal(m.AspectCounts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aspect counts")
	}
	snippetsJSON, err := json.Marshal(m.EvidenceSnippets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence snippets")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sentiment_metrics (id, query_run_id, restaurant_id, overall_sentiment, value_score, aspect_counts, evidence_snippets, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.QueryRunID, m.RestaurantID, m.OverallSentiment, m.ValueScore,
		string(countsJSON), string(snippetsJSON), m.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert sentiment metric")
}

func (s *SQLiteStore) CreateLandscapeMetric(ctx context.Context, m *model.LandscapeMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	statsJSON, err := json.Marshal(m.DistributionStats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal distribution stats")
	}
	bandsJSON, err := json.Marshal(m.MarketBands)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal market bands")
	}
	pointsJSON, err := json.Marshal(m.ValueMapPoints)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal value map points")
	}
	conclusionsJSON, err := json.Marshal(m.Conclusions)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal conclusions")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO landscape_metrics (id, query_run_id, target_item_signature, distribution_stats, market_bands, value_map_points, conclusions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.QueryRunID, m.TargetItemSignature, string(statsJSON), string(bandsJSON),
		string(pointsJSON), string(conclusionsJSON), m.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert landscape metric")
}

func (s *SQLiteStore) GetLandscapeMetric(ctx context.Context, runID string) (*model.LandscapeMetric, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query_run_id, target_item_signature, distribution_stats, market_bands, value_map_points, conclusions, created_at
		 FROM landscape_metrics WHERE query_run_id = ?`,
		runID,
	)

	var m model.LandscapeMetric
	var statsJSON, bandsJSON, pointsJSON, conclusionsJSON string
	err := row.Scan(&m.ID, &m.QueryRunID, &m.TargetItemSignature, &statsJSON, &bandsJSON, &pointsJSON, &conclusionsJSON, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "landscape metric for run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get landscape metric")
	}
	if err := json.Unmarshal([]byte(statsJSON), &m.DistributionStats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal distribution stats")
	}
	if err := json.Unmarshal([]byte(bandsJSON), &m.MarketBands); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal market bands")
	}
	if err := json.Unmarshal([]byte(pointsJSON), &m.ValueMapPoints); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal value map points")
	}
	if err := json.Unmarshal([]byte(conclusionsJSON), &m.Conclusions); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal conclusions")
	}
	return &m, nil
}

// helpers

func checkRunAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanQueryRun(row scannable, runID string) (*model.QueryRun, error) {
	var r model.QueryRun
	var inputJSON, versionsJSON string
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &inputJSON, &r.TargetItemSignature, &versionsJSON,
		&r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan query run")
	}

	if err := json.Unmarshal([]byte(inputJSON), &r.Input); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal query input")
	}
	if err := json.Unmarshal([]byte(versionsJSON), &r.CollectorVersions); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal collector versions")
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
