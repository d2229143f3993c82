package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRecordTable = `CREATE TABLE IF NOT EXISTS patient_record (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	record     JSON NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a RecordStore that keeps one row per patient in the
// patient_record table. The record column is JSON rather than JSONB so the
// stored text comes back unchanged, and position keeps store order. Save
// replaces the table contents in a single transaction.
func NewPGStore(pool *pgxpool.Pool) RecordStore {
	return &pgStore{pool: pool}
}

func (s *pgStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createRecordTable); err != nil {
		return fmt.Errorf("create patient_record table: %w", err)
	}
	return nil
}

func (s *pgStore) Load(ctx context.Context) (*Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, record FROM patient_record ORDER BY position, id`)
	if err != nil {
		return nil, s.queryError(err)
	}
	defer rows.Close()

	doc := NewDocument()
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan patient record: %w", err)
		}
		doc.Set(id, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError(err)
	}
	return doc, nil
}

func (s *pgStore) queryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: table patient_record", ErrStoreNotFound)
	}
	return fmt.Errorf("query patient records: %w", err)
}

func (s *pgStore) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		doc = NewDocument()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	ids := doc.IDs()
	batch := &pgx.Batch{}
	for i, id := range ids {
		raw, _ := doc.Get(id)
		batch.Queue(`
			INSERT INTO patient_record (id, position, record) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				position = EXCLUDED.position,
				record = EXCLUDED.record,
				updated_at = CASE
					WHEN patient_record.record::text = EXCLUDED.record::text THEN patient_record.updated_at
					ELSE NOW()
				END`,
			id, i, []byte(raw))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM patient_record WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("prune patient records: %w", err)
	}

	br := tx.SendBatch(ctx, batch)
	for range ids {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert patient record: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
