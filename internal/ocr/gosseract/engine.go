//go:build tesseract

// Package gosseract recognises page images in-process through the
// tesseract C API. It needs cgo and libtesseract, so it is only built with
// the tesseract tag; importing it registers the engine with ocr.
package gosseract

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/practicos/internal/ocr"
)

func init() {
	ocr.SetLibraryEngine(New())
}

type Engine struct {
	clientFactory func() *gosseract.Client
}

func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	start := time.Now()
	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	cleanup, err := configure(c, in)
	defer cleanup()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("ocr: %s: %w", in.ID, err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("ocr: %s: recognize text: %w", in.ID, err)
	}
	return ocr.Result{
		InputID:  in.ID,
		Text:     strings.TrimSpace(text),
		Engine:   e.Name(),
		Duration: time.Since(start),
	}, nil
}

func configure(c *gosseract.Client, in ocr.Input) (func(), error) {
	cleanup := func() {}
	switch {
	case len(in.Image) > 0:
		if err := c.SetImageFromBytes(in.Image); err != nil {
			return cleanup, fmt.Errorf("set image: %w", err)
		}
	case in.ImagePath != "":
		if err := c.SetImage(in.ImagePath); err != nil {
			return cleanup, fmt.Errorf("set image: %w", err)
		}
	default:
		return cleanup, fmt.Errorf("input has no image")
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return cleanup, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.PSM)); err != nil {
			return cleanup, fmt.Errorf("set psm: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(in.DPI)); err != nil {
			return cleanup, fmt.Errorf("set dpi: %w", err)
		}
	}
	// gosseract always initialises with tesseract's default engine mode
	// (ocr.DefaultOEM). Any other mode is init-only and must come from a
	// config file read by Init.
	if in.OEM > 0 && in.OEM != ocr.DefaultOEM {
		path, err := writeOEMConfig(in.OEM)
		if err != nil {
			return cleanup, fmt.Errorf("set oem: %w", err)
		}
		cleanup = func() { _ = os.Remove(path) }
		if err := c.SetConfigFile(path); err != nil {
			return cleanup, fmt.Errorf("set oem: %w", err)
		}
	}
	return cleanup, nil
}

func writeOEMConfig(oem int) (string, error) {
	f, err := os.CreateTemp("", "practicos-oem-*.cfg")
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(f, "tessedit_ocr_engine_mode %d\n", oem); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
