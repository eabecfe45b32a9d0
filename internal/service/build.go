package service

import (
	"github.com/practicos/internal/ai"
	"github.com/practicos/internal/app"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/ocr"
	"github.com/practicos/internal/pdf"
	"github.com/practicos/internal/profile"
)

// NewEngine returns the OCR engine selected by OCR_ENGINE. The library
// engine is only available in binaries built with the tesseract tag;
// without it the tesseract executable is used.
func NewEngine(config *app.Config) ocr.Engine {
	if config.OCREngine == app.EngineLibrary {
		if engine := ocr.LibraryEngine(); engine != nil {
			return engine
		}
		logger := log.WithComponent("service")
		logger.Warn().Msg("library OCR engine not linked in, using tesseract executable")
	}
	return ocr.NewExecEngine(config.TesseractPath)
}

// New assembles the full pipeline from config. recorder may be nil.
func New(config *app.Config, p *profile.Profile, recorder Recorder) *ProcessService {
	processor := NewProcessor(config, p,
		pdf.NewRasterizer(config.PdftoppmPath, config.TempPath),
		NewEngine(config),
		ai.FromConfig(config))
	return NewProcessService(config, p, processor, recorder)
}
