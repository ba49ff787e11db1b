package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ratio-cli/internal/model"
)

// sqliteTime is fixed width so stored timestamps sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS filings (
	filing_id          TEXT PRIMARY KEY,
	run_id             TEXT NOT NULL,
	company            TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL,
	verification_score REAL NOT NULL,
	ratio_count        INTEGER NOT NULL,
	processed_at       TEXT NOT NULL,
	data               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS filing_concepts (
	filing_id     TEXT NOT NULL REFERENCES filings(filing_id),
	ordinal       INTEGER NOT NULL,
	positional_id TEXT NOT NULL,
	statement     TEXT NOT NULL,
	concept       TEXT NOT NULL,
	identity      TEXT,
	value         REAL,
	data          TEXT NOT NULL,
	PRIMARY KEY (filing_id, ordinal)
);

CREATE TABLE IF NOT EXISTS ratio_results (
	filing_id  TEXT NOT NULL REFERENCES filings(filing_id),
	ordinal    INTEGER NOT NULL,
	ratio_id   TEXT NOT NULL,
	tier       INTEGER NOT NULL,
	status     TEXT NOT NULL,
	value      REAL,
	confidence REAL NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (filing_id, ordinal),
	UNIQUE (filing_id, ratio_id)
);

CREATE TABLE IF NOT EXISTS component_states (
	filing_id TEXT NOT NULL REFERENCES filings(filing_id),
	ordinal   INTEGER NOT NULL,
	identity  TEXT NOT NULL,
	status    TEXT NOT NULL,
	data      TEXT NOT NULL,
	PRIMARY KEY (filing_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_filings_industry ON filings(industry);
CREATE INDEX IF NOT EXISTS idx_filing_concepts_identity ON filing_concepts(identity);
CREATE INDEX IF NOT EXISTS idx_ratio_results_ratio_id ON ratio_results(ratio_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveFilingResult(ctx context.Context, result *model.FilingResult) (err error) {
	rs, err := encodeResult(result, result.ProcessedAt.UTC().Format(sqliteTime))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck
		}
	}()

	for _, table := range []string{"filing_concepts", "ratio_results", "component_states", "filings"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE filing_id = ?`, table), result.FilingID); err != nil {
			return eris.Wrapf(err, "sqlite: delete %s for %s", table, result.FilingID)
		}
	}
	if err = insertRows(ctx, tx, "filings", filingColumns, [][]any{rs.header}); err != nil {
		return err
	}
	if err = insertRows(ctx, tx, "filing_concepts", conceptColumns, rs.concepts); err != nil {
		return err
	}
	if err = insertRows(ctx, tx, "ratio_results", ratioColumns, rs.ratios); err != nil {
		return err
	}
	if err = insertRows(ctx, tx, "component_states", componentColumns, rs.components); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			// JSON payloads are stored as TEXT.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

func (s *SQLiteStore) GetFilingResult(ctx context.Context, filingID string) (*model.FilingResult, error) {
	var (
		r           model.FilingResult
		processedAt string
		header      string
		industry    string
		ratioCount  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT filing_id, run_id, company, industry, verification_score, ratio_count, processed_at, data FROM filings WHERE filing_id = ?`,
		filingID,
	).Scan(&r.FilingID, &r.RunID, &r.Company, &industry, &r.VerificationScore, &ratioCount, &processedAt, &header)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get filing %s", filingID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get filing %s", filingID)
	}
	if r.ProcessedAt, err = time.Parse(sqliteTime, processedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse processed_at")
	}
	r.ProcessedAt = r.ProcessedAt.UTC()
	if err := decodeHeader([]byte(header), &r); err != nil {
		return nil, err
	}

	if r.Concepts, err = sqliteChildren[model.MappedConcept](ctx, s.db, "filing_concepts", filingID); err != nil {
		return nil, err
	}
	relink(r.Concepts)
	if r.Ratios, err = sqliteChildren[model.RatioResult](ctx, s.db, "ratio_results", filingID); err != nil {
		return nil, err
	}
	if r.Components, err = sqliteChildren[model.ComponentState](ctx, s.db, "component_states", filingID); err != nil {
		return nil, err
	}
	return &r, nil
}

func sqliteChildren[T any](ctx context.Context, db *sql.DB, table, filingID string) ([]T, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE filing_id = ? ORDER BY ordinal`, table),
		filingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		v, err := decodeRow[T]([]byte(data), table)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

func (s *SQLiteStore) ListFilings(ctx context.Context, filter FilingFilter) ([]FilingSummary, error) {
	query := `SELECT filing_id, run_id, company, industry, verification_score, ratio_count, processed_at FROM filings`
	var args []any
	if filter.Industry != "" {
		query += ` WHERE industry = ?`
		args = append(args, filter.Industry)
	}
	query += ` ORDER BY processed_at DESC, filing_id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filings")
	}
	defer rows.Close() //nolint:errcheck

	var out []FilingSummary
	for rows.Next() {
		var (
			fs          FilingSummary
			processedAt string
		)
		if err := rows.Scan(&fs.FilingID, &fs.RunID, &fs.Company, &fs.Industry, &fs.VerificationScore, &fs.RatioCount, &processedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filing")
		}
		if fs.ProcessedAt, err = time.Parse(sqliteTime, processedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse processed_at")
		}
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate filings")
}
