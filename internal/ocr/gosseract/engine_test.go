//go:build tesseract

package gosseract

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicos/internal/ocr"
)

func TestEngineName(t *testing.T) {
	var e ocr.Engine = New()
	assert.Equal(t, "tesseract", e.Name())
}

func TestRegistersLibraryEngine(t *testing.T) {
	require.NotNil(t, ocr.LibraryEngine())
	assert.Equal(t, "tesseract", ocr.LibraryEngine().Name())
}

func TestRecognizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Recognize(ctx, ocr.Input{ID: "p1", ImagePath: "page.png"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRecognizeWithoutImage(t *testing.T) {
	_, err := New().Recognize(context.Background(), ocr.Input{ID: "p1"})
	assert.ErrorContains(t, err, "no image")
}

func TestWriteOEMConfig(t *testing.T) {
	path, err := writeOEMConfig(1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tessedit_ocr_engine_mode 1\n", string(data))
}
