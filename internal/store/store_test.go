package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicos/internal/estimate"
)

func TestItemsOf(t *testing.T) {
	doc := &estimate.Document{
		Tables: []estimate.Table{{Page: 3, Rows: []estimate.Item{{
			Code: "101", Description: "Excavación", Unit: "m³",
			Quantity: estimate.NewAmount(150), Amount: estimate.NewAmount(12000),
		}}}},
		KeyItems: []estimate.KeyItem{{Material: "Cemento", Units: "bulto", TotalPrice: estimate.NewAmount(2500)}},
	}
	items := ItemsOf(doc)
	require.Len(t, items, 2)

	assert.Equal(t, 3, items[0].Page)
	require.NotNil(t, items[0].Quantity)
	assert.Equal(t, 150.0, *items[0].Quantity)
	assert.Nil(t, items[0].UnitPrice)

	assert.Equal(t, 0, items[1].Page)
	assert.Equal(t, "Cemento", items[1].Description)
	require.NotNil(t, items[1].Amount)
	assert.Equal(t, 2500.0, *items[1].Amount)
}

func TestMetadataOf(t *testing.T) {
	doc := &estimate.Document{Metadata: estimate.Metadata{Client: "Inmobiliaria XYZ"}}
	doc.Apply(estimate.Enhancement{Metadata: estimate.EnhancedMetadata{TotalGeneral: estimate.NewAmount(10)}})
	assert.Equal(t, map[string]any{"client": "Inmobiliaria XYZ", "total_general": 10.0}, MetadataOf(doc))
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

// testPool connects to PRACTICOS_TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PRACTICOS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PRACTICOS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	docs := NewDocumentStore(pool)

	digest := uuid.NewString()
	qty := 75.0
	d := &Document{
		Source:   "obra.pdf",
		Digest:   digest,
		Status:   StatusProcessed,
		Pages:    2,
		Metadata: map[string]any{"client": "Inmobiliaria XYZ"},
		Duration: 1500 * time.Millisecond,
	}
	items := []Item{{Page: 2, Code: "102", Description: "Concreto", Quantity: &qty}, {Description: "Cemento"}}
	require.NoError(t, docs.Insert(ctx, d, items))
	t.Cleanup(func() { _ = docs.Delete(ctx, d.ID) })

	got, err := docs.FindByDigest(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, 2, got.ItemCount)
	assert.Equal(t, "Inmobiliaria XYZ", got.Metadata["client"])
	assert.Equal(t, 1500*time.Millisecond, got.Duration)

	stored, err := docs.Items(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 75.0, *stored[0].Quantity)
	assert.Equal(t, 0, stored[1].Page)

	// Same digest replaces the row and keeps the ID.
	firstID := d.ID
	again := &Document{Source: "obra-copia.pdf", Digest: digest, Status: StatusFailed, Error: "ocr failed"}
	require.NoError(t, docs.Insert(ctx, again, nil))
	assert.Equal(t, firstID, again.ID)

	got, err = docs.Get(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 0, got.ItemCount)

	list, err := docs.List(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, docs.Delete(ctx, firstID))
	_, err = docs.Get(ctx, firstID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, docs.Delete(ctx, firstID), ErrNotFound)
}

func TestGetInvalidID(t *testing.T) {
	docs := NewDocumentStore(nil)
	_, err := docs.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, docs.Delete(context.Background(), "not-a-uuid"), ErrNotFound)
}
