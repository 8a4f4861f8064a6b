// Package history records pipeline runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/sqlite"
)

// Run is one recorded pipeline run.
type Run struct {
	ID               string
	StartedAt        time.Time
	Input            string
	Output           string
	EntitiesBefore   int
	EntitiesAfter    int
	BytesBefore      int64
	BytesAfter       int64
	ClassesMerged    int
	ProductsExported int
	ProductsSkipped  int
	Duration         time.Duration
	Skipped          []Skip
}

// Skip is a product left out of the geometry export.
type Skip struct {
	Product int64
	Kind    string
	Message string
}

// Store is the run-history database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT,
	entities_before INTEGER NOT NULL,
	entities_after INTEGER NOT NULL,
	bytes_before INTEGER NOT NULL,
	bytes_after INTEGER NOT NULL,
	classes_merged INTEGER NOT NULL,
	products_exported INTEGER NOT NULL,
	products_skipped INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS skipped_products (
	run_id TEXT NOT NULL,
	product_id INTEGER NOT NULL,
	reason TEXT NOT NULL,
	message TEXT,
	PRIMARY KEY(run_id, product_id),
	FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.NewIO("set WAL mode", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("initialise", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run and its skipped products in one transaction.
func (s *Store) Record(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, input, output, entities_before, entities_after,
	bytes_before, bytes_after, classes_merged, products_exported, products_skipped, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Input, run.Output,
		run.EntitiesBefore, run.EntitiesAfter, run.BytesBefore, run.BytesAfter,
		run.ClassesMerged, run.ProductsExported, run.ProductsSkipped, run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if len(run.Skipped) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO skipped_products (run_id, product_id, reason, message) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sk := range run.Skipped {
			if _, err := stmt.ExecContext(ctx, run.ID, sk.Product, sk.Kind, sk.Message); err != nil {
				return fmt.Errorf("insert skipped product #%d: %w", sk.Product, err)
			}
		}
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first. Skipped products are
// loaded as well. A limit of zero or less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, started_at, input, output, entities_before, entities_after,
	bytes_before, bytes_after, classes_merged, products_exported, products_skipped, duration_ms
FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r       Run
			started string
			output  sql.NullString
			ms      int64
		)
		if err := rows.Scan(&r.ID, &started, &r.Input, &output, &r.EntitiesBefore, &r.EntitiesAfter,
			&r.BytesBefore, &r.BytesAfter, &r.ClassesMerged, &r.ProductsExported, &r.ProductsSkipped, &ms); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", r.ID, started, err)
		}
		r.Output = output.String
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// rows must be closed before the next query on the single connection
	rows.Close()

	for _, r := range runs {
		if r.Skipped, err = s.skipped(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) skipped(ctx context.Context, runID string) ([]Skip, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT product_id, reason, message FROM skipped_products WHERE run_id = ? ORDER BY product_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Skip
	for rows.Next() {
		var (
			sk  Skip
			msg sql.NullString
		)
		if err := rows.Scan(&sk.Product, &sk.Kind, &msg); err != nil {
			return nil, err
		}
		sk.Message = msg.String
		out = append(out, sk)
	}
	return out, rows.Err()
}
