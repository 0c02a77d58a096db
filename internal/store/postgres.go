package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/db"
	"github.com/sells-group/pricing-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot collection-loop operations.
var preparedStatements = map[string]string{
	"upsert_restaurant": `INSERT INTO competitor_restaurants (id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name, address) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			google_place_id = COALESCE(NULLIF(excluded.google_place_id, ''), competitor_restaurants.google_place_id),
			yelp_id = COALESCE(NULLIF(excluded.yelp_id, ''), competitor_restaurants.yelp_id),
			website_domain = COALESCE(NULLIF(excluded.website_domain, ''), competitor_restaurants.website_domain),
			updated_at = excluded.updated_at
		RETURNING id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at`,
	"get_or_create_item": `INSERT INTO competitor_items (id, restaurant_id, normalized_name, category, variant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (restaurant_id, normalized_name, category, variant) DO UPDATE SET
			normalized_name = excluded.normalized_name
		RETURNING id, restaurant_id, normalized_name, category, variant, created_at`,
	"insert_price_observation": `INSERT INTO price_observations (id, item_id, source_type, source_url, captured_at, observed_price, currency, is_delivery_price, delivery_platform_name, raw_payload_ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"insert_review_observation": `INSERT INTO review_observations (id, restaurant_id, source_type, captured_at, rating, text, raw_payload_ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_runs (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input                 JSONB NOT NULL,
	target_item_signature TEXT NOT NULL,
	collector_versions    JSONB NOT NULL DEFAULT '{}',
	status                TEXT NOT NULL DEFAULT 'PENDING',
	error_message         TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at          TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS competitor_restaurants (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL,
	lat             DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng             DOUBLE PRECISION NOT NULL DEFAULT 0,
	google_place_id TEXT NOT NULL DEFAULT '',
	yelp_id         TEXT NOT NULL DEFAULT '',
	website_domain  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS competitor_items (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	restaurant_id   TEXT NOT NULL REFERENCES competitor_restaurants(id),
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	variant         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (restaurant_id, normalized_name, category, variant)
);

CREATE TABLE IF NOT EXISTS price_observations (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	item_id                TEXT NOT NULL REFERENCES competitor_items(id),
	source_type            TEXT NOT NULL,
	source_url             TEXT NOT NULL DEFAULT '',
	captured_at            TIMESTAMPTZ NOT NULL,
	observed_price         DOUBLE PRECISION NOT NULL,
	currency               TEXT NOT NULL DEFAULT 'USD',
	is_delivery_price      BOOLEAN NOT NULL DEFAULT false,
	delivery_platform_name TEXT NOT NULL DEFAULT '',
	raw_payload_ref_id     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS review_observations (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	restaurant_id      TEXT NOT NULL REFERENCES competitor_restaurants(id),
	source_type        TEXT NOT NULL,
	captured_at        TIMESTAMPTZ NOT NULL,
	rating             DOUBLE PRECISION NOT NULL DEFAULT 0,
	text               TEXT NOT NULL,
	raw_payload_ref_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_payloads (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_type  TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	storage_ref  TEXT NOT NULL,
	hash         TEXT NOT NULL,
	metadata     JSONB NOT NULL DEFAULT '{}',
	captured_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS item_matches (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_run_id          TEXT NOT NULL REFERENCES query_runs(id),
	competitor_item_id    TEXT NOT NULL REFERENCES competitor_items(id),
	target_item_signature TEXT NOT NULL,
	match_score           DOUBLE PRECISION NOT NULL,
	match_method          TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_estimates (
	id                       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_run_id             TEXT NOT NULL REFERENCES query_runs(id),
	competitor_item_id       TEXT NOT NULL REFERENCES competitor_items(id),
	estimated_in_store_price DOUBLE PRECISION NOT NULL,
	confidence               INTEGER NOT NULL,
	confidence_factors       JSONB NOT NULL DEFAULT '{}',
	delivery_markup_pct      DOUBLE PRECISION,
	explanation              TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sentiment_metrics (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_run_id      TEXT NOT NULL REFERENCES query_runs(id),
	restaurant_id     TEXT NOT NULL REFERENCES competitor_restaurants(id),
	overall_sentiment DOUBLE PRECISION NOT NULL,
	value_score       INTEGER NOT NULL,
	aspect_counts     JSONB NOT NULL DEFAULT '{}',
	evidence_snippets JSONB NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS landscape_metrics (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_run_id          TEXT NOT NULL UNIQUE REFERENCES query_runs(id),
	target_item_signature TEXT NOT NULL,
	distribution_stats    JSONB NOT NULL,
	market_bands          JSONB NOT NULL,
	value_map_points      JSONB NOT NULL DEFAULT '[]',
	conclusions           JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_query_runs_status ON query_runs(status);
CREATE INDEX IF NOT EXISTS idx_query_runs_store ON query_runs((input->>'storeId'));
CREATE INDEX IF NOT EXISTS idx_items_restaurant ON competitor_items(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_price_obs_item ON price_observations(item_id);
CREATE INDEX IF NOT EXISTS idx_review_obs_restaurant ON review_observations(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_matches_run ON item_matches(query_run_id);
CREATE INDEX IF NOT EXISTS idx_estimates_run ON price_estimates(query_run_id);
CREATE INDEX IF NOT EXISTS idx_sentiment_run ON sentiment_metrics(query_run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateQueryRun(ctx context.Context, run *model.QueryRun) error {
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
		return eris.Wrap(err, "postgres: marshal query input")
	}
	versionsJSON, err := json.Marshal(run.CollectorVersions)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal collector versions")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO query_runs (id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, inputJSON, run.TargetItemSignature, versionsJSON,
		string(run.Status), run.ErrorMessage, now, now,
	)
	return eris.Wrap(err, "postgres: insert query run")
}

func (s *PostgresStore) GetQueryRun(ctx context.Context, runID string) (*model.QueryRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at, completed_at
		 FROM query_runs WHERE id = $1`,
		runID,
	)
	return scanPGQueryRun(row, runID)
}

func (s *PostgresStore) ListQueryRuns(ctx context.Context, filter RunFilter) ([]model.QueryRun, error) {
	query := `SELECT id, input, target_item_signature, collector_versions, status, error_message, created_at, updated_at, completed_at
		 FROM query_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.StoreID != "" {
		query += fmt.Sprintf(` AND input->>'storeId' = $%d`, argIdx)
		args = append(args, filter.StoreID)
		argIdx++
	}
	if filter.TargetItem != "" {
		query += fmt.Sprintf(` AND input->>'targetItem' = $%d`, argIdx)
		args = append(args, filter.TargetItem)
		argIdx++
	}
	if filter.Intent != "" {
		query += fmt.Sprintf(` AND input->>'positioningIntent' = $%d`, argIdx)
		args = append(args, string(filter.Intent))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list query runs")
	}
	defer rows.Close()

	var runs []model.QueryRun
	for rows.Next() {
		r, err := scanPGQueryRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list query runs iterate")
}

func (s *PostgresStore) MarkQueryRunRunning(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE query_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(model.RunStatusRunning), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run running %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return nil
}

func (s *PostgresStore) MarkQueryRunCompleted(ctx context.Context, runID string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE query_runs SET status = $1, updated_at = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusCompleted), now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run completed %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return nil
}

func (s *PostgresStore) MarkQueryRunFailed(ctx context.Context, runID string, errorMessage string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE query_runs SET status = $1, error_message = $2, updated_at = $3, completed_at = $4 WHERE id = $5`,
		string(model.RunStatusFailed), errorMessage, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run failed %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return nil
}

func (s *PostgresStore) UpsertRestaurant(ctx context.Context, r *model.CompetitorRestaurant) (*model.CompetitorRestaurant, error) {
	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, preparedStatements["upsert_restaurant"],
		id, r.Name, r.Address, r.Lat, r.Lng, r.GooglePlaceID, r.YelpID, r.WebsiteDomain, now, now,
	)

	var out model.CompetitorRestaurant
	err := row.Scan(&out.ID, &out.Name, &out.Address, &out.Lat, &out.Lng,
		&out.GooglePlaceID, &out.YelpID, &out.WebsiteDomain, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert restaurant %s", r.NaturalKey())
	}
	return &out, nil
}

func (s *PostgresStore) GetOrCreateItem(ctx context.Context, item *model.CompetitorItem) (*model.CompetitorItem, error) {
	id := item.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, preparedStatements["get_or_create_item"],
		id, item.RestaurantID, item.NormalizedName, item.Category, item.Variant, now,
	)

	var out model.CompetitorItem
	err := row.Scan(&out.ID, &out.RestaurantID, &out.NormalizedName, &out.Category, &out.Variant, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get or create item %s", item.NormalizedName)
	}
	return &out, nil
}

func (s *PostgresStore) AppendPriceObservation(ctx context.Context, obs *model.PriceObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, preparedStatements["insert_price_observation"],
		obs.ID, obs.ItemID, string(obs.SourceType), obs.SourceURL, obs.CapturedAt.UTC(),
		obs.ObservedPrice, obs.Currency, obs.IsDeliveryPrice, obs.DeliveryPlatformName, obs.RawPayloadRefID,
	)
	return eris.Wrap(err, "postgres: insert price observation")
}

func (s *PostgresStore) AppendReviewObservation(ctx context.Context, obs *model.ReviewObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, preparedStatements["insert_review_observation"],
		obs.ID, obs.RestaurantID, string(obs.SourceType), obs.CapturedAt.UTC(),
		obs.Rating, obs.Text, obs.RawPayloadRefID,
	)
	return eris.Wrap(err, "postgres: insert review observation")
}

func (s *PostgresStore) CreateRawPayload(ctx context.Context, ref *model.RawPayloadRef) error {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	metaJSON, err := json.Marshal(ref.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload metadata")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_payloads (id, source_type, content_type, storage_ref, hash, metadata, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ref.ID, string(ref.SourceType), ref.ContentType, ref.StorageRef, ref.Hash, metaJSON, ref.CapturedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert raw payload")
}

func (s *PostgresStore) ListItemsWithObservations(ctx context.Context) ([]model.ItemWithObservations, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.restaurant_id, i.normalized_name, i.category, i.variant, i.created_at,
		        r.id, r.name, r.address, r.lat, r.lng, r.google_place_id, r.yelp_id, r.website_domain, r.created_at, r.updated_at
		 FROM competitor_items i
		 JOIN competitor_restaurants r ON r.id = i.restaurant_id
		 ORDER BY i.created_at, i.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
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
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		index[iw.Item.ID] = len(out)
		out = append(out, iw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list items iterate")
	}
	rows.Close()

	obsRows, err := s.pool.Query(ctx,
		`SELECT id, item_id, source_type, source_url, captured_at, observed_price, currency, is_delivery_price, delivery_platform_name, raw_payload_ref_id
		 FROM price_observations ORDER BY captured_at, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price observations")
	}
	defer obsRows.Close()

	for obsRows.Next() {
		var o model.PriceObservation
		err := obsRows.Scan(&o.ID, &o.ItemID, &o.SourceType, &o.SourceURL, &o.CapturedAt,
			&o.ObservedPrice, &o.Currency, &o.IsDeliveryPrice, &o.DeliveryPlatformName, &o.RawPayloadRefID)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan price observation")
		}
		if idx, ok := index[o.ItemID]; ok {
			out[idx].Observations = append(out[idx].Observations, o)
		}
	}
	return out, eris.Wrap(obsRows.Err(), "postgres: list price observations iterate")
}

func (s *PostgresStore) ListRestaurantsWithReviews(ctx context.Context, restaurantIDs []string) ([]model.RestaurantWithReviews, error) {
	if len(restaurantIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, lat, lng, google_place_id, yelp_id, website_domain, created_at, updated_at
		 FROM competitor_restaurants WHERE id = ANY($1) ORDER BY created_at, id`,
		restaurantIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list restaurants")
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
			return nil, eris.Wrap(err, "postgres: scan restaurant")
		}
		index[rw.Restaurant.ID] = len(out)
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list restaurants iterate")
	}
	rows.Close()

	revRows, err := s.pool.Query(ctx,
		`SELECT id, restaurant_id, source_type, captured_at, rating, text, raw_payload_ref_id
		 FROM review_observations WHERE restaurant_id = ANY($1) ORDER BY captured_at, id`,
		restaurantIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review observations")
	}
	defer revRows.Close()

	for revRows.Next() {
		var rev model.ReviewObservation
		err := revRows.Scan(&rev.ID, &rev.RestaurantID, &rev.SourceType, &rev.CapturedAt,
			&rev.Rating, &rev.Text, &rev.RawPayloadRefID)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan review observation")
		}
		if idx, ok := index[rev.RestaurantID]; ok {
			out[idx].Reviews = append(out[idx].Reviews, rev)
		}
	}
	return out, eris.Wrap(revRows.Err(), "postgres: list review observations iterate")
}

func (s *PostgresStore) CreateItemMatch(ctx context.Context, m *model.ItemMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO item_matches (id, query_run_id, competitor_item_id, target_item_signature, match_score, match_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.QueryRunID, m.CompetitorItemID, m.TargetItemSignature, m.MatchScore, m.MatchMethod, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert item match")
}

func (s *PostgresStore) CreatePriceEstimate(ctx context.Context, e *model.PriceEstimate) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()
	factorsJSON, err := json.Marshal(e.ConfidenceFactors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal confidence factors")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO price_estimates (id, query_run_id, competitor_item_id, estimated_in_store_price, confidence, confidence_factors, delivery_markup_pct, explanation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.QueryRunID, e.CompetitorItemID, e.EstimatedInStorePrice, e.Confidence,
		factorsJSON, e.DeliveryMarkupEstimatePct, e.Explanation, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert price estimate")
}

func (s *PostgresStore) ListPriceEstimates(ctx context.Context, runID string) ([]model.PriceEstimate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, query_run_id, competitor_item_id, estimated_in_store_price, confidence, confidence_factors, delivery_markup_pct, explanation, created_at
		 FROM price_estimates WHERE query_run_id = $1 ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price estimates")
	}
	defer rows.Close()

	var out []model.PriceEstimate
	for rows.Next() {
		var e model.PriceEstimate
		var factorsJSON []byte
		var markup *float64
		err := rows.Scan(&e.ID, &e.QueryRunID, &e.CompetitorItemID, &e.EstimatedInStorePrice,
			&e.Confidence, &factorsJSON, &markup, &e.Explanation, &e.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan price estimate")
		}
		if err := json.Unmarshal(factorsJSON, &e.ConfidenceFactors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal confidence factors")
		}
		e.DeliveryMarkupEstimatePct = markup
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list price estimates iterate")
}

func (s *PostgresStore) CreateSentimentMetric(ctx context.Context, m *model.SentimentMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	countsJSON, err := json.Marshal(m.AspectCounts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aspect counts")
	}
	snippetsJSON, err := json.Marshal(m.EvidenceSnippets)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence snippets")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sentiment_metrics (id, query_run_id, restaurant_id, overall_sentiment, value_score, aspect_counts, evidence_snippets, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.QueryRunID, m.RestaurantID, m.OverallSentiment, m.ValueScore,
		countsJSON, snippetsJSON, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert sentiment metric")
}

func (s *PostgresStore) CreateLandscapeMetric(ctx context.Context, m *model.LandscapeMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	statsJSON, err := json.Marshal(m.DistributionStats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal distribution stats")
	}
	bandsJSON, err := json.Marshal(m.MarketBands)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal market bands")
	}
	pointsJSON, err := json.Marshal(m.ValueMapPoints)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal value map points")
	}
	conclusionsJSON, err := json.Marshal(m.Conclusions)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal conclusions")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO landscape_metrics (id, query_run_id, target_item_signature, distribution_stats, market_bands, value_map_points, conclusions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.QueryRunID, m.TargetItemSignature, statsJSON, bandsJSON, pointsJSON, conclusionsJSON, m.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert landscape metric")
}

func (s *PostgresStore) GetLandscapeMetric(ctx context.Context, runID string) (*model.LandscapeMetric, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, query_run_id, target_item_signature, distribution_stats, market_bands, value_map_points, conclusions, created_at
		 FROM landscape_metrics WHERE query_run_id = $1`,
		runID,
	)

	var m model.LandscapeMetric
	var statsJSON, bandsJSON, pointsJSON, conclusionsJSON []byte
	err := row.Scan(&m.ID, &m.QueryRunID, &m.TargetItemSignature, &statsJSON, &bandsJSON, &pointsJSON, &conclusionsJSON, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "landscape metric for run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get landscape metric")
	}
	if err := json.Unmarshal(statsJSON, &m.DistributionStats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal distribution stats")
	}
	if err := json.Unmarshal(bandsJSON, &m.MarketBands); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal market bands")
	}
	if err := json.Unmarshal(pointsJSON, &m.ValueMapPoints); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal value map points")
	}
	if err := json.Unmarshal(conclusionsJSON, &m.Conclusions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal conclusions")
	}
	return &m, nil
}

func scanPGQueryRun(row pgx.Row, runID string) (*model.QueryRun, error) {
	var r model.QueryRun
	var inputJSON, versionsJSON []byte

	err := row.Scan(&r.ID, &inputJSON, &r.TargetItemSignature, &versionsJSON,
		&r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "%s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan query run")
	}

	if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal query input")
	}
	if err := json.Unmarshal(versionsJSON, &r.CollectorVersions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal collector versions")
	}
	return &r, nil
}
