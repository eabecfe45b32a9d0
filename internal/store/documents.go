package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Document is one processed (or failed) PDF.
type Document struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Digest      string         `json:"digest"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Pages       int            `json:"pages"`
	ItemCount   int            `json:"item_count"`
	Metadata    map[string]any `json:"metadata"`
	OutputPath  string         `json:"output_path,omitempty"`
	Duration    time.Duration  `json:"duration"`
	ProcessedAt time.Time      `json:"processed_at"`
}

type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = `id, source, digest, status, error, pages, item_count, metadata, output_path, duration_ms, processed_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var id uuid.UUID
	var durationMs int64
	if err := row.Scan(&id, &d.Source, &d.Digest, &d.Status, &d.Error, &d.Pages, &d.ItemCount,
		&d.Metadata, &d.OutputPath, &durationMs, &d.ProcessedAt); err != nil {
		return nil, err
	}
	d.ID = id.String()
	d.Duration = time.Duration(durationMs) * time.Millisecond
	return &d, nil
}

// FindByDigest returns the document recorded for a file hash.
func (store *DocumentStore) FindByDigest(ctx context.Context, digest string) (*Document, error) {
	d, err := scanDocument(store.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE digest = $1`, digest))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: document by digest: %w", err)
	}
	return d, nil
}

func (store *DocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	d, err := scanDocument(store.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, parsed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: document get: %w", err)
	}
	return d, nil
}

// List returns the most recently processed documents first.
func (store *DocumentStore) List(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := store.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY processed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: documents list: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0, limit)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return out, nil
}

// Insert records a document and its items in one transaction. A document
// with the same digest is replaced, keeping its ID. The stored ID is written
// back to d.ID.
func (store *DocumentStore) Insert(ctx context.Context, d *Document, items []Item) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ProcessedAt.IsZero() {
		d.ProcessedAt = time.Now().UTC()
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	rowID, err := uuid.Parse(d.ID)
	if err != nil {
		return fmt.Errorf("store: document id: %w", err)
	}
	d.ItemCount = len(items)
	return WithTransaction(ctx, store.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (digest) DO UPDATE SET
				source = excluded.source,
				status = excluded.status,
				error = excluded.error,
				pages = excluded.pages,
				item_count = excluded.item_count,
				metadata = excluded.metadata,
				output_path = excluded.output_path,
				duration_ms = excluded.duration_ms,
				processed_at = excluded.processed_at
			RETURNING id
		`, rowID, d.Source, d.Digest, d.Status, d.Error, d.Pages, d.ItemCount,
			d.Metadata, d.OutputPath, d.Duration.Milliseconds(), d.ProcessedAt).Scan(&id)
		if err != nil {
			return fmt.Errorf("store: document insert: %w", err)
		}
		d.ID = id.String()
		return insertItems(ctx, tx, id, items)
	})
}

// Delete removes a document and its items.
func (store *DocumentStore) Delete(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := store.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, parsed)
	if err != nil {
		return fmt.Errorf("store: document delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
