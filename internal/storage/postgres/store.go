// Package postgres implements the storage interfaces on PostgreSQL via
// database/sql and lib/pq. Structured records (metrics, configs, components)
// are stored as JSONB; hot lookup keys are real columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
)

// Store implements every storage interface over one connection pool.
type Store struct {
	db *sql.DB
}

var _ storage.CoreMetricsStore = (*Store)(nil)
var _ storage.ConfigStore = (*Store)(nil)
var _ storage.FieldValueStore = (*Store)(nil)
var _ storage.CompositeStore = (*Store)(nil)
var _ storage.DelegationStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- CoreMetricsStore ---------------------------------------------------------

func (s *Store) GetCoreMetrics(ctx context.Context, address string) (trust.CoreMetrics, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT metrics FROM trust_core_metrics WHERE address = $1`, address,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.CoreMetrics{}, fmt.Errorf("core metrics for %s: %w", address, trust.ErrNotFound)
	}
	if err != nil {
		return trust.CoreMetrics{}, storeErr("load core metrics", err)
	}

	var m trust.CoreMetrics
	if err := json.Unmarshal(blob, &m); err != nil {
		return trust.CoreMetrics{}, fmt.Errorf("decode core metrics: %w", err)
	}
	return m, nil
}

func (s *Store) UpsertCoreMetrics(ctx context.Context, m trust.CoreMetrics) (trust.CoreMetrics, error) {
	m.LastUpdated = time.Now().UTC()
	blob, err := json.Marshal(m)
	if err != nil {
		return trust.CoreMetrics{}, fmt.Errorf("encode core metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trust_core_metrics (address, metrics, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET metrics = $2, updated_at = $3`,
		m.Address, blob, m.LastUpdated,
	)
	if err != nil {
		return trust.CoreMetrics{}, storeErr("upsert core metrics", err)
	}
	return m, nil
}

// --- ConfigStore --------------------------------------------------------------

func (s *Store) UpsertConfig(ctx context.Context, cfg trust.MetricsConfig) (trust.MetricsConfig, error) {
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	blob, err := json.Marshal(cfg)
	if err != nil {
		return trust.MetricsConfig{}, fmt.Errorf("encode config: %w", err)
	}

	// Keep the original created_at on replacement.
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO trust_metric_configs (app_id, developer_id, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (app_id) DO UPDATE
		   SET developer_id = $2, config = $3, updated_at = $4
		 RETURNING created_at`,
		cfg.AppID, cfg.DeveloperID, blob, now,
	).Scan(&createdAt)
	if err != nil {
		return trust.MetricsConfig{}, storeErr("upsert config", err)
	}

	cfg.CreatedAt = createdAt
	return cfg, nil
}

func (s *Store) GetConfig(ctx context.Context, appID string) (trust.MetricsConfig, error) {
	var (
		blob                 []byte
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT config, created_at, updated_at FROM trust_metric_configs WHERE app_id = $1`, appID,
	).Scan(&blob, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.MetricsConfig{}, fmt.Errorf("config for app %s: %w", appID, trust.ErrNotFound)
	}
	if err != nil {
		return trust.MetricsConfig{}, storeErr("load config", err)
	}
	return decodeConfig(blob, createdAt, updatedAt)
}

func (s *Store) ListConfigs(ctx context.Context) ([]trust.MetricsConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config, created_at, updated_at FROM trust_metric_configs ORDER BY app_id`)
	if err != nil {
		return nil, storeErr("list configs", err)
	}
	defer rows.Close()

	var configs []trust.MetricsConfig
	for rows.Next() {
		var (
			blob                 []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&blob, &createdAt, &updatedAt); err != nil {
			return nil, storeErr("scan config", err)
		}
		cfg, err := decodeConfig(blob, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// The timestamp columns are authoritative; the JSON blob is not rewritten
// when a replacement keeps the original created_at.
func decodeConfig(blob []byte, createdAt, updatedAt time.Time) (trust.MetricsConfig, error) {
	var cfg trust.MetricsConfig
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return trust.MetricsConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CreatedAt = createdAt
	cfg.UpdatedAt = updatedAt
	return cfg, nil
}

// --- FieldValueStore ----------------------------------------------------------

func (s *Store) UpsertFieldValue(ctx context.Context, v trust.FieldValue) (trust.FieldValue, error) {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_field_values (address, app_id, field_name, value, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (address, app_id, field_name) DO UPDATE
		   SET value = $4, updated_at = $5`,
		v.Address, v.AppID, v.FieldName, v.Value, v.UpdatedAt,
	)
	if err != nil {
		return trust.FieldValue{}, storeErr("upsert field value", err)
	}
	return v, nil
}

func (s *Store) GetFieldValue(ctx context.Context, address, appID, fieldName string) (trust.FieldValue, error) {
	v := trust.FieldValue{Address: address, AppID: appID, FieldName: fieldName}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM trust_field_values
		 WHERE address = $1 AND app_id = $2 AND field_name = $3`,
		address, appID, fieldName,
	).Scan(&v.Value, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.FieldValue{}, fmt.Errorf("field %s for %s/%s: %w", fieldName, address, appID, trust.ErrNotFound)
	}
	if err != nil {
		return trust.FieldValue{}, storeErr("load field value", err)
	}
	return v, nil
}

// --- CompositeStore -----------------------------------------------------------

func (s *Store) UpsertCompositeScore(ctx context.Context, score trust.CompositeScore) (trust.CompositeScore, error) {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	components, err := json.Marshal(score.Components)
	if err != nil {
		return trust.CompositeScore{}, fmt.Errorf("encode components: %w", err)
	}

	// The audit row id is stable across recomputations of the same pair.
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO trust_composite_scores
		   (id, address, app_id, core_score, custom_score, final_score, components, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (address, app_id) DO UPDATE
		   SET core_score = $4, custom_score = $5, final_score = $6,
		       components = $7, computed_at = $8
		 RETURNING id`,
		score.ID, score.Address, score.AppID,
		score.CoreScore, score.CustomScore, score.FinalScore,
		components, score.ComputedAt,
	).Scan(&score.ID)
	if err != nil {
		return trust.CompositeScore{}, storeErr("upsert composite score", err)
	}
	return score, nil
}

func (s *Store) GetCompositeScore(ctx context.Context, address, appID string) (trust.CompositeScore, error) {
	score := trust.CompositeScore{Address: address, AppID: appID}
	var components []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, core_score, custom_score, final_score, components, computed_at
		 FROM trust_composite_scores WHERE address = $1 AND app_id = $2`,
		address, appID,
	).Scan(&score.ID, &score.CoreScore, &score.CustomScore, &score.FinalScore, &components, &score.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.CompositeScore{}, fmt.Errorf("composite score for %s/%s: %w", address, appID, trust.ErrNotFound)
	}
	if err != nil {
		return trust.CompositeScore{}, storeErr("load composite score", err)
	}

	if len(components) > 0 {
		if err := json.Unmarshal(components, &score.Components); err != nil {
			return trust.CompositeScore{}, fmt.Errorf("decode components: %w", err)
		}
	}
	return score, nil
}

// --- DelegationStore ----------------------------------------------------------

func (s *Store) CreateDelegation(ctx context.Context, d trust.Delegation) (trust.Delegation, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_delegations (id, delegator, delegate, amount, max_depth, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.Delegator, d.Delegate, d.Amount, d.MaxDepth, d.Active, d.CreatedAt,
	)
	if err != nil {
		return trust.Delegation{}, storeErr("create delegation", err)
	}
	return d, nil
}

func (s *Store) GetDelegation(ctx context.Context, id string) (trust.Delegation, error) {
	d, err := s.scanDelegation(s.db.QueryRowContext(ctx,
		`SELECT id, delegator, delegate, amount, max_depth, active, created_at
		 FROM trust_delegations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return trust.Delegation{}, fmt.Errorf("delegation %s: %w", id, trust.ErrNotFound)
	}
	if err != nil {
		return trust.Delegation{}, storeErr("load delegation", err)
	}
	return d, nil
}

func (s *Store) DeactivateDelegation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trust_delegations SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return storeErr("deactivate delegation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("deactivate delegation", err)
	}
	if n == 0 {
		return fmt.Errorf("delegation %s: %w", id, trust.ErrNotFound)
	}
	return nil
}

func (s *Store) ListDelegationsByAddress(ctx context.Context, address string) ([]trust.Delegation, error) {
	return s.listDelegations(ctx,
		`SELECT id, delegator, delegate, amount, max_depth, active, created_at
		 FROM trust_delegations WHERE delegator = $1 OR delegate = $1
		 ORDER BY created_at`, address)
}

func (s *Store) ListActiveDelegationsTo(ctx context.Context, delegate string) ([]trust.Delegation, error) {
	return s.listDelegations(ctx,
		`SELECT id, delegator, delegate, amount, max_depth, active, created_at
		 FROM trust_delegations WHERE delegate = $1 AND active
		 ORDER BY created_at`, delegate)
}

func (s *Store) ListActiveDelegationsFrom(ctx context.Context, delegator string) ([]trust.Delegation, error) {
	return s.listDelegations(ctx,
		`SELECT id, delegator, delegate, amount, max_depth, active, created_at
		 FROM trust_delegations WHERE delegator = $1 AND active
		 ORDER BY created_at`, delegator)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanDelegation(row rowScanner) (trust.Delegation, error) {
	var d trust.Delegation
	err := row.Scan(&d.ID, &d.Delegator, &d.Delegate, &d.Amount, &d.MaxDepth, &d.Active, &d.CreatedAt)
	return d, err
}

func (s *Store) listDelegations(ctx context.Context, query, arg string) ([]trust.Delegation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, storeErr("list delegations", err)
	}
	defer rows.Close()

	var result []trust.Delegation
	for rows.Next() {
		d, err := s.scanDelegation(rows)
		if err != nil {
			return nil, storeErr("scan delegation", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// --- LedgerStore --------------------------------------------------------------

func (s *Store) GetBaseScore(ctx context.Context, address string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM trust_base_scores WHERE address = $1`, address,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("base score for %s: %w", address, trust.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr("load base score", err)
	}
	return score, nil
}

func (s *Store) SetBaseScore(ctx context.Context, address string, score float64, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_base_scores (address, score, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET score = $2, updated_at = $3`,
		address, score, updatedAt,
	)
	if err != nil {
		return storeErr("set base score", err)
	}
	return nil
}

func (s *Store) RecordEnvironmentalSubmission(ctx context.Context, sub trust.EnvironmentalSubmission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_environmental_submissions (address, renewable_ratio, submitted_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET renewable_ratio = $2, submitted_at = $3`,
		sub.Address, sub.RenewableRatio, sub.SubmittedAt,
	)
	if err != nil {
		return storeErr("record environmental submission", err)
	}
	return nil
}

func (s *Store) LatestEnvironmentalSubmission(ctx context.Context, address string) (trust.EnvironmentalSubmission, error) {
	sub := trust.EnvironmentalSubmission{Address: address}
	err := s.db.QueryRowContext(ctx,
		`SELECT renewable_ratio, submitted_at FROM trust_environmental_submissions
		 WHERE address = $1`, address,
	).Scan(&sub.RenewableRatio, &sub.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.EnvironmentalSubmission{}, fmt.Errorf("environmental data for %s: %w", address, trust.ErrNotFound)
	}
	if err != nil {
		return trust.EnvironmentalSubmission{}, storeErr("load environmental submission", err)
	}
	return sub, nil
}

// storeErr tags backend failures so callers can map them to StoreUnavailable
// handling.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w (%v)", op, trust.ErrStoreUnavailable, err)
}
