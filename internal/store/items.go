package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/practicos/internal/estimate"
)

// Item is one stored workbook line. Page is zero for AI key items.
type Item struct {
	Page        int      `json:"page,omitempty"`
	Code        string   `json:"code,omitempty"`
	Description string   `json:"description"`
	Unit        string   `json:"unit,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

func amountPtr(a estimate.Amount) *float64 {
	if !a.Valid {
		return nil
	}
	v := a.Value
	return &v
}

// ItemsOf flattens the table rows and AI key items of doc.
func ItemsOf(doc *estimate.Document) []Item {
	var out []Item
	for _, t := range doc.Tables {
		for _, r := range t.Rows {
			out = append(out, Item{
				Page:        t.Page,
				Code:        r.Code,
				Description: r.Description,
				Unit:        r.Unit,
				Quantity:    amountPtr(r.Quantity),
				UnitPrice:   amountPtr(r.UnitPrice),
				Amount:      amountPtr(r.Amount),
			})
		}
	}
	for _, k := range doc.KeyItems {
		out = append(out, Item{
			Description: string(k.Material),
			Unit:        string(k.Units),
			UnitPrice:   amountPtr(k.UnitPrice),
			Amount:      amountPtr(k.TotalPrice),
		})
	}
	return out
}

// MetadataOf returns the merged metadata of doc keyed by field name.
func MetadataOf(doc *estimate.Document) map[string]any {
	out := map[string]any{}
	for _, f := range doc.MergedMetadata() {
		out[f.Key] = f.Value
	}
	return out
}

func insertItems(ctx context.Context, tx pgx.Tx, documentID uuid.UUID, items []Item) error {
	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("store: items clear: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, len(items))
	for i, it := range items {
		var page *int
		if it.Page > 0 {
			p := it.Page
			page = &p
		}
		rows[i] = []any{documentID, i + 1, page, it.Code, it.Description, it.Unit, it.Quantity, it.UnitPrice, it.Amount}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"items"},
		[]string{"document_id", "position", "page", "code", "description", "unit", "quantity", "unit_price", "amount"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("store: items insert: %w", err)
	}
	return nil
}

// Items returns the stored items of a document in workbook order.
func (store *DocumentStore) Items(ctx context.Context, id string) ([]Item, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := store.pool.Query(ctx, `
		SELECT COALESCE(page, 0), code, description, unit, quantity, unit_price, amount
		FROM items
		WHERE document_id = $1
		ORDER BY position
	`, parsed)
	if err != nil {
		return nil, fmt.Errorf("store: items list: %w", err)
	}
	defer rows.Close()

	out := make([]Item, 0, 16)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Page, &it.Code, &it.Description, &it.Unit, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return nil, fmt.Errorf("store: items scan: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: items rows: %w", err)
	}
	return out, nil
}
