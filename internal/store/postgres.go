package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/db"
	"github.com/sells-group/ratio-cli/internal/model"
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

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	maxConns, minConns := int32(10), int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pool, err := db.Connect(ctx, connString, maxConns, minConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS filings (
	filing_id          TEXT PRIMARY KEY,
	run_id             TEXT NOT NULL,
	company            TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL,
	verification_score DOUBLE PRECISION NOT NULL,
	ratio_count        INTEGER NOT NULL,
	processed_at       TIMESTAMPTZ NOT NULL,
	data               JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS filing_concepts (
	filing_id     TEXT NOT NULL REFERENCES filings(filing_id) ON DELETE CASCADE,
	ordinal       INTEGER NOT NULL,
	positional_id TEXT NOT NULL,
	statement     TEXT NOT NULL,
	concept       TEXT NOT NULL,
	identity      TEXT,
	value         DOUBLE PRECISION,
	data          JSONB NOT NULL,
	PRIMARY KEY (filing_id, ordinal)
);

CREATE TABLE IF NOT EXISTS ratio_results (
	filing_id  TEXT NOT NULL REFERENCES filings(filing_id) ON DELETE CASCADE,
	ordinal    INTEGER NOT NULL,
	ratio_id   TEXT NOT NULL,
	tier       SMALLINT NOT NULL,
	status     TEXT NOT NULL,
	value      DOUBLE PRECISION,
	confidence DOUBLE PRECISION NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (filing_id, ordinal),
	UNIQUE (filing_id, ratio_id)
);

CREATE TABLE IF NOT EXISTS component_states (
	filing_id TEXT NOT NULL REFERENCES filings(filing_id) ON DELETE CASCADE,
	ordinal   INTEGER NOT NULL,
	identity  TEXT NOT NULL,
	status    TEXT NOT NULL,
	data      JSONB NOT NULL,
	PRIMARY KEY (filing_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_filings_industry ON filings(industry);
CREATE INDEX IF NOT EXISTS idx_filings_processed_at ON filings(processed_at DESC);
CREATE INDEX IF NOT EXISTS idx_filing_concepts_identity ON filing_concepts(identity);
CREATE INDEX IF NOT EXISTS idx_ratio_results_ratio_id ON ratio_results(ratio_id);
`

var filingUpsert = db.UpsertConfig{
	Table:        "filings",
	Columns:      filingColumns,
	ConflictKeys: []string{"filing_id"},
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) SaveFilingResult(ctx context.Context, result *model.FilingResult) (err error) {
	rs, err := encodeResult(result, result.ProcessedAt.UTC())
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx) //nolint:errcheck
		}
	}()

	if _, err = db.UpsertTx(ctx, tx, filingUpsert, [][]any{rs.header}); err != nil {
		return eris.Wrapf(err, "postgres: upsert filing %s", result.FilingID)
	}
	for _, table := range []string{"filing_concepts", "ratio_results", "component_states"} {
		if _, err = tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE filing_id = $1`, table), result.FilingID); err != nil {
			return eris.Wrapf(err, "postgres: clear %s for %s", table, result.FilingID)
		}
	}
	if _, err = db.CopyFrom(ctx, tx, "filing_concepts", conceptColumns, rs.concepts); err != nil {
		return eris.Wrap(err, "postgres: copy concepts")
	}
	if _, err = db.CopyFrom(ctx, tx, "ratio_results", ratioColumns, rs.ratios); err != nil {
		return eris.Wrap(err, "postgres: copy ratios")
	}
	if _, err = db.CopyFrom(ctx, tx, "component_states", componentColumns, rs.components); err != nil {
		return eris.Wrap(err, "postgres: copy components")
	}

	if err = tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

func (s *PostgresStore) GetFilingResult(ctx context.Context, filingID string) (*model.FilingResult, error) {
	var (
		r          model.FilingResult
		header     []byte
		industry   string
		ratioCount int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT filing_id, run_id, company, industry, verification_score, ratio_count, processed_at, data FROM filings WHERE filing_id = $1`,
		filingID,
	).Scan(&r.FilingID, &r.RunID, &r.Company, &industry, &r.VerificationScore, &ratioCount, &r.ProcessedAt, &header)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get filing %s", filingID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get filing %s", filingID)
	}
	r.ProcessedAt = r.ProcessedAt.UTC()
	if err := decodeHeader(header, &r); err != nil {
		return nil, err
	}

	if r.Concepts, err = postgresChildren[model.MappedConcept](ctx, s.pool, "filing_concepts", filingID); err != nil {
		return nil, err
	}
	relink(r.Concepts)
	if r.Ratios, err = postgresChildren[model.RatioResult](ctx, s.pool, "ratio_results", filingID); err != nil {
		return nil, err
	}
	if r.Components, err = postgresChildren[model.ComponentState](ctx, s.pool, "component_states", filingID); err != nil {
		return nil, err
	}
	return &r, nil
}

func postgresChildren[T any](ctx context.Context, pool db.Pool, table, filingID string) ([]T, error) {
	rows, err := pool.Query(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE filing_id = $1 ORDER BY ordinal`, pgx.Identifier{table}.Sanitize()),
		filingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		v, err := decodeRow[T](data, table)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

func (s *PostgresStore) ListFilings(ctx context.Context, filter FilingFilter) ([]FilingSummary, error) {
	query := `SELECT filing_id, run_id, company, industry, verification_score, ratio_count, processed_at FROM filings`
	var args []any
	if filter.Industry != "" {
		args = append(args, filter.Industry)
		query += fmt.Sprintf(` WHERE industry = $%d`, len(args))
	}
	query += ` ORDER BY processed_at DESC, filing_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filings")
	}
	defer rows.Close()

	var out []FilingSummary
	for rows.Next() {
		var fs FilingSummary
		if err := rows.Scan(&fs.FilingID, &fs.RunID, &fs.Company, &fs.Industry, &fs.VerificationScore, &fs.RatioCount, &fs.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filing")
		}
		fs.ProcessedAt = fs.ProcessedAt.UTC()
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate filings")
}
