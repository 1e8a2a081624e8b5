// Package store provides subject persistence for the layout service: a
// PostgreSQL implementation backed by lib/pq and an in-memory one used by
// the offline CLI and tests.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/postgres"
	"github.com/lib/pq"
)

// Schema creates the subjects table and its index. Candidates are read per
// kind within a time window, so the index leads with kind.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS subjects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL,
    category   TEXT NOT NULL,
    range_from DOUBLE PRECISION NOT NULL,
    range_to   DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (range_from <= range_to)
)`,
	`CREATE INDEX IF NOT EXISTS subjects_kind_range_idx ON subjects (kind, range_from, range_to)`,
}

// Postgres reads and writes subjects in PostgreSQL.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgres creates a subject store on db.
func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "subject-store"),
	}
}

// EnsureSchema creates the subjects table and index if they are missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, Schema...); err != nil {
		return fmt.Errorf("creating subjects schema: %w", err)
	}
	return nil
}

// Kinds lists every distinct kind, sorted.
func (s *Postgres) Kinds(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT kind FROM subjects ORDER BY kind`, "kinds")
}

// Categories lists every distinct category across all kinds, sorted.
func (s *Postgres) Categories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT category FROM subjects ORDER BY category`, "categories")
}

func (s *Postgres) distinct(ctx context.Context, query, what string) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %w", what, apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", what, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Candidates returns the subjects of kind that intersect [from, to], widest
// first. Equal spans are ordered by id so repeated reads are identical.
func (s *Postgres) Candidates(ctx context.Context, kind string, from, to float64) ([]lanes.Subject, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, kind, category, range_from, range_to
		FROM subjects
		WHERE kind = $1 AND range_from <= $3 AND range_to >= $2
		ORDER BY (range_to - range_from) DESC, id`,
		kind, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying candidates for %q: %w: %w", kind, apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	subjects := make([]lanes.Subject, 0)
	for rows.Next() {
		var sub lanes.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Kind, &sub.Category, &sub.From, &sub.To); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates for %q: %w", kind, err)
	}
	return subjects, nil
}

// Upsert inserts or replaces subjects in one transaction.
func (s *Postgres) Upsert(ctx context.Context, subjects ...lanes.Subject) error {
	if len(subjects) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO subjects (id, name, kind, category, range_from, range_to, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				kind = EXCLUDED.kind,
				category = EXCLUDED.category,
				range_from = EXCLUDED.range_from,
				range_to = EXCLUDED.range_to,
				updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, sub := range subjects {
			if _, err := stmt.ExecContext(ctx, sub.ID, sub.Name, sub.Kind, sub.Category, sub.From, sub.To); err != nil {
				return fmt.Errorf("upserting subject %q: %w", sub.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("subjects upserted", "count", len(subjects))
	return nil
}

// Delete removes subjects by id. Unknown ids are ignored.
func (s *Postgres) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM subjects WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deleting %d subjects: %w", len(ids), err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("subjects deleted", "requested", len(ids), "deleted", n)
	return nil
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
