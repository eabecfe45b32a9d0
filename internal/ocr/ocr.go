// Package ocr recognises text in rendered page images.
package ocr

import (
	"context"
	"time"
)

// Page segmentation and engine modes used for estimate pages: tesseract's
// default engine selection (legacy or LSTM, whichever is available) on a
// single uniform block of text.
const (
	DefaultOEM = 3
	DefaultPSM = 6
)

// Input is one image to recognise. Image takes precedence over ImagePath
// when both are set. Zero DPI, PSM or OEM leave the engine default.
type Input struct {
	ID        string
	ImagePath string
	Image     []byte
	Languages []string
	DPI       int
	PSM       int
	OEM       int
}

type Result struct {
	InputID  string
	Text     string
	Engine   string
	Duration time.Duration
}

// Engine recognises the text of a single image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// InputOption mutates an Input before recognition.
type InputOption func(*Input)

func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

func WithPSM(psm int) InputOption {
	return func(in *Input) { in.PSM = psm }
}

func WithOEM(oem int) InputOption {
	return func(in *Input) { in.OEM = oem }
}

// NewInput builds an Input for an image file with the default modes applied
// before opts.
func NewInput(id, imagePath string, opts ...InputOption) Input {
	in := Input{ID: id, ImagePath: imagePath, PSM: DefaultPSM, OEM: DefaultOEM}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}
