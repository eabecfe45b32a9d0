package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/export"
	"github.com/practicos/internal/hash"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/metrics"
	"github.com/practicos/internal/profile"
	"github.com/practicos/internal/store"
)

// DocumentProcessor is implemented by Processor.
type DocumentProcessor interface {
	Process(ctx context.Context, pdfPath string) (*estimate.Document, error)
}

// Recorder keeps track of processed files. store.DocumentStore implements it.
type Recorder interface {
	FindByDigest(ctx context.Context, digest string) (*store.Document, error)
	Insert(ctx context.Context, d *store.Document, items []store.Item) error
}

type Options struct {
	// Force reprocesses files that were already recorded.
	Force bool
	// JSON also writes <stem>.json next to the workbook.
	JSON bool
}

type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type FileResult struct {
	Source   string
	Output   string
	Skipped  bool
	Document *estimate.Document
}

type ProcessService struct {
	config    *app.Config
	profile   *profile.Profile
	processor DocumentProcessor
	recorder  Recorder
}

// NewProcessService wires the batch pipeline. recorder may be nil, in which
// case nothing is deduplicated or recorded.
func NewProcessService(config *app.Config, p *profile.Profile, processor DocumentProcessor, recorder Recorder) *ProcessService {
	return &ProcessService{config: config, profile: p, processor: processor, recorder: recorder}
}

func (service *ProcessService) Profile() *profile.Profile { return service.profile }

// Run processes every PDF in the input directory.
func (service *ProcessService) Run(ctx context.Context, opts Options) (Summary, error) {
	logger := log.WithComponent("service")
	var summary Summary

	if err := os.MkdirAll(service.config.OutputPath, 0o755); err != nil {
		return summary, fmt.Errorf("service: create output dir: %w", err)
	}
	files, err := fetchInputFiles(service.config.InputPath)
	if err != nil {
		return summary, fmt.Errorf("service: fetch files: %w", err)
	}
	if len(files) == 0 {
		logger.Warn().Str("dir", service.config.InputPath).Msg("no PDF files found")
		return summary, nil
	}
	logger.Info().Int("files", len(files)).Str("dir", service.config.InputPath).Msg("found PDF files to process")

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := service.ProcessFile(ctx, filepath.Join(service.config.InputPath, f), opts)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logger.Error().Err(err).Str("file", f).Msg("error processing file")
			summary.Failed++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Processed++
		}
	}
	logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("batch finished")
	return summary, nil
}

func fetchInputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pdfFiles []string
	for _, e := range entries {
		if e.IsDir() || !isPDFName(e.Name()) {
			continue
		}
		pdfFiles = append(pdfFiles, e.Name())
	}
	// Sorting makes repeat runs predictable
	slices.Sort(pdfFiles)
	return pdfFiles, nil
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") && !strings.HasPrefix(filepath.Base(name), ".")
}

// ProcessFile processes one PDF and writes its workbook to the output
// directory.
func (service *ProcessService) ProcessFile(ctx context.Context, path string, opts Options) (*FileResult, error) {
	logger := log.WithComponent("service").With().Str("file", filepath.Base(path)).Logger()
	start := time.Now()
	result := &FileResult{Source: path, Output: export.OutputPath(service.config.OutputPath, path, ".xlsx")}

	digest, err := hash.FileDigest(path)
	if err != nil {
		metrics.IncDocument(metrics.ResultFailed)
		return nil, err
	}

	if service.recorder != nil && !opts.Force {
		existing, err := service.recorder.FindByDigest(ctx, digest)
		switch {
		case err == nil && existing.Status == store.StatusProcessed:
			logger.Info().Str("id", existing.ID).Msg("already processed, skipping")
			metrics.IncDocument(metrics.ResultSkipped)
			result.Skipped = true
			return result, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			logger.Warn().Err(err).Msg("lookup of previous run failed")
		}
	}

	logger.Info().Msg("processing")
	doc, err := service.processor.Process(ctx, path)
	if err == nil {
		doc.Digest = digest
		err = service.export(doc, result.Output, opts)
	}
	elapsed := time.Since(start)
	if err != nil {
		metrics.IncDocument(metrics.ResultFailed)
		service.record(ctx, &store.Document{
			Source:   filepath.Base(path),
			Digest:   digest,
			Status:   store.StatusFailed,
			Error:    err.Error(),
			Duration: elapsed,
		}, nil)
		return nil, err
	}

	metrics.IncDocument(metrics.ResultProcessed)
	metrics.ObserveDocument(elapsed.Seconds())
	service.record(ctx, &store.Document{
		Source:     filepath.Base(path),
		Digest:     digest,
		Status:     store.StatusProcessed,
		Pages:      doc.Pages,
		Metadata:   store.MetadataOf(doc),
		OutputPath: result.Output,
		Duration:   elapsed,
	}, store.ItemsOf(doc))

	logger.Info().Str("output", result.Output).Dur("took", elapsed).Msg("processed successfully")
	result.Document = doc
	return result, nil
}

func (service *ProcessService) export(doc *estimate.Document, output string, opts Options) error {
	if err := export.WriteFile(output, doc, service.profile); err != nil {
		return err
	}
	if opts.JSON {
		jsonPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".json"
		if err := export.WriteJSON(jsonPath, doc); err != nil {
			return err
		}
	}
	return nil
}

// Extract processes path without writing a workbook, for callers that stream
// the result themselves. source names the document in logs and records;
// the run is recorded like ProcessFile but never skipped as a duplicate.
func (service *ProcessService) Extract(ctx context.Context, path, source string) (*estimate.Document, error) {
	start := time.Now()
	digest, err := hash.FileDigest(path)
	if err != nil {
		metrics.IncDocument(metrics.ResultFailed)
		return nil, err
	}

	doc, err := service.processor.Process(ctx, path)
	elapsed := time.Since(start)
	if err != nil {
		metrics.IncDocument(metrics.ResultFailed)
		service.record(ctx, &store.Document{
			Source:   source,
			Digest:   digest,
			Status:   store.StatusFailed,
			Error:    err.Error(),
			Duration: elapsed,
		}, nil)
		return nil, err
	}
	doc.Source = source
	doc.Digest = digest

	metrics.IncDocument(metrics.ResultProcessed)
	metrics.ObserveDocument(elapsed.Seconds())
	service.record(ctx, &store.Document{
		Source:   source,
		Digest:   digest,
		Status:   store.StatusProcessed,
		Pages:    doc.Pages,
		Metadata: store.MetadataOf(doc),
		Duration: elapsed,
	}, store.ItemsOf(doc))
	return doc, nil
}

func (service *ProcessService) record(ctx context.Context, d *store.Document, items []store.Item) {
	if service.recorder == nil {
		return
	}
	if err := service.recorder.Insert(ctx, d, items); err != nil {
		logger := log.WithComponent("service")
		logger.Error().Err(err).Str("file", d.Source).Msg("record document")
	}
}
