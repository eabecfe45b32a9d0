package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/profile"
)

// OutputPath returns <outputDir>/<pdf stem><ext>.
func OutputPath(outputDir, pdfPath, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(outputDir, stem+ext)
}

// Write streams the workbook for doc to w.
func Write(w io.Writer, doc *estimate.Document, p *profile.Profile) error {
	f, err := Build(doc, p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// WriteFile atomically replaces path with the workbook for doc.
func WriteFile(path string, doc *estimate.Document, p *profile.Profile) error {
	logger := log.WithComponent("export")
	logger.Info().Str("path", path).Msg("exporting data to Excel")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("export: create pending workbook: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending workbook")
		}
	}()

	if err := Write(pendingFile, doc, p); err != nil {
		return err
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("export: replace workbook: %w", err)
	}
	logger.Info().Str("path", path).Msg("Excel file saved")
	return nil
}

// WriteJSON atomically writes doc as indented JSON.
func WriteJSON(path string, doc *estimate.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: write json: %w", err)
	}
	return nil
}
