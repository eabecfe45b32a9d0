// Package service runs estimate PDFs through rendering, OCR, text analysis,
// AI enhancement and export.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/practicos/internal/ai"
	"github.com/practicos/internal/app"
	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/hash"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/metrics"
	"github.com/practicos/internal/ocr"
	"github.com/practicos/internal/pdf"
	"github.com/practicos/internal/profile"
)

var errNoText = errors.New("service: no text recognised on any page")

type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, dpi int) (*pdf.Rendering, error)
}

// Processor turns one PDF into an estimate.Document.
type Processor struct {
	rasterizer Rasterizer
	engine     ocr.Engine
	extractor  ai.Extractor
	profile    *profile.Profile
	dpi        int
	workers    int
	languages  []string
}

func NewProcessor(config *app.Config, p *profile.Profile, rasterizer Rasterizer, engine ocr.Engine, extractor ai.Extractor) *Processor {
	if extractor == nil {
		extractor = ai.Disabled{}
	}
	return &Processor{
		rasterizer: rasterizer,
		engine:     engine,
		extractor:  extractor,
		profile:    p,
		dpi:        config.OCRDPI,
		workers:    config.OCRWorkers,
		languages:  strings.Split(config.OCRLanguage, "+"),
	}
}

func (p *Processor) Process(ctx context.Context, pdfPath string) (*estimate.Document, error) {
	logger := log.WithComponent("processor").With().Str("pdf", filepath.Base(pdfPath)).Logger()

	rendering, err := p.rasterizer.Render(ctx, pdfPath, p.dpi)
	if err != nil {
		return nil, fmt.Errorf("service: convert PDF: %w", err)
	}
	defer func() {
		if err := rendering.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("remove page images")
		}
	}()

	pages := p.uniquePages(rendering.Pages)
	logger.Info().Int("pages", len(rendering.Pages)).Int("unique", len(pages)).Msg("extracting text with OCR")

	results, err := ocr.RecognizePages(ctx, p.engine, pages, p.workers,
		ocr.WithLanguages(p.languages...), ocr.WithDPI(p.dpi))
	if err != nil {
		return nil, fmt.Errorf("service: ocr: %w", err)
	}

	texts := make([]estimate.PageText, 0, len(results))
	var pageErrors []estimate.PageError
	for _, r := range results {
		if r.Err != nil {
			pageErrors = append(pageErrors, estimate.PageError{Page: r.Page, Error: r.Err.Error()})
			continue
		}
		texts = append(texts, estimate.PageText{Number: r.Page, Text: estimate.CleanText(r.Text)})
	}
	if len(texts) == 0 {
		return nil, errNoText
	}

	doc := estimate.Analyze(pdfPath, texts, p.profile)
	doc.Pages = len(rendering.Pages)
	doc.PageErrors = pageErrors
	logger.Info().
		Int("sections", len(doc.Sections)).
		Int("items", doc.ItemCount()).
		Msg("local extraction finished")

	p.enhance(ctx, doc)
	return doc, nil
}

// uniquePages drops a page whose image is byte-identical to the page before
// it. The difference hash only selects candidates for the digest comparison.
func (p *Processor) uniquePages(pages []pdf.Page) []pdf.Page {
	logger := log.WithComponent("processor")
	out := make([]pdf.Page, 0, len(pages))
	var prev *pageFingerprint
	for _, page := range pages {
		fp, err := fingerprint(page.Path)
		if err != nil {
			logger.Debug().Err(err).Int("page", page.Number).Msg("page hash unavailable")
			out = append(out, page)
			prev = nil
			continue
		}
		if prev != nil && prev.same(fp) {
			logger.Info().Int("page", page.Number).Msg("skipping duplicated page")
			metrics.IncPage(p.engine.Name(), "duplicate")
			continue
		}
		prev = fp
		out = append(out, page)
	}
	return out
}

type pageFingerprint struct {
	path   string
	dhash  uint64
	digest string
}

func fingerprint(path string) (*pageFingerprint, error) {
	h, err := hash.PageFile(path)
	if err != nil {
		return nil, err
	}
	return &pageFingerprint{path: path, dhash: h}, nil
}

// same compares digests lazily, only for pages whose dHash already matches.
func (fp *pageFingerprint) same(other *pageFingerprint) bool {
	if !hash.SamePage(fp.dhash, other.dhash) {
		return false
	}
	for _, f := range []*pageFingerprint{fp, other} {
		if f.digest != "" {
			continue
		}
		d, err := hash.FileDigest(f.path)
		if err != nil {
			return false
		}
		f.digest = d
	}
	return fp.digest == other.digest
}

// enhance applies the AI extraction. Failures keep the local result.
func (p *Processor) enhance(ctx context.Context, doc *estimate.Document) {
	if _, off := p.extractor.(ai.Disabled); off {
		return
	}
	logger := log.WithComponent("ai")
	logger.Info().Str("provider", p.extractor.Name()).Msg("extracting data with AI")
	enhancement, err := p.extractor.Enhance(ctx, doc.Text)
	if err != nil {
		logger.Error().Err(err).Msg("AI extraction failed, keeping local extraction")
		return
	}
	doc.Apply(enhancement)
}
