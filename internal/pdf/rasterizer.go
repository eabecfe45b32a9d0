// Package pdf renders PDF pages to PNG images with poppler's pdftoppm.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/practicos/internal/log"
)

var ErrNoPages = errors.New("pdf: no pages rendered")

// Page is one rendered page image. Number is 1-based.
type Page struct {
	Number int
	Path   string
}

// Rendering holds the page images of one document inside its own
// temporary directory.
type Rendering struct {
	Dir   string
	Pages []Page
}

// Cleanup removes the rendered images.
func (r *Rendering) Cleanup() error {
	if r == nil || r.Dir == "" {
		return nil
	}
	return os.RemoveAll(r.Dir)
}

type Rasterizer struct {
	Binary  string
	TempDir string
}

func NewRasterizer(binary, tempDir string) *Rasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &Rasterizer{Binary: binary, TempDir: tempDir}
}

// Render converts every page of pdfPath to a PNG at the given DPI.
func (r *Rasterizer) Render(ctx context.Context, pdfPath string, dpi int) (*Rendering, error) {
	logger := log.WithComponent("pdf")
	if err := IsPDF(pdfPath); err != nil {
		return nil, err
	}
	if r.TempDir != "" {
		if err := os.MkdirAll(r.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("pdf: create temp dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.TempDir, "pages-")
	if err != nil {
		return nil, fmt.Errorf("pdf: create page dir: %w", err)
	}
	rendering := &Rendering{Dir: dir}

	logger.Info().Str("pdf", pdfPath).Int("dpi", dpi).Msg("converting PDF to images")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, "-r", strconv.Itoa(dpi), "-png", pdfPath, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = rendering.Cleanup()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdf: %s: %w: %s", filepath.Base(r.Binary), err, strings.TrimSpace(stderr.String()))
	}

	pages, err := collectPages(dir)
	if err != nil {
		_ = rendering.Cleanup()
		return nil, err
	}
	rendering.Pages = pages
	logger.Info().Str("pdf", pdfPath).Int("pages", len(pages)).Msg("converted pages to images")
	return rendering, nil
}

// pdftoppm names pages page-1.png, or page-01.png / page-001.png when the
// document has 10+ / 100+ pages.
var pageName = regexp.MustCompile(`^page-(\d+)\.png$`)

func collectPages(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pdf: read page dir: %w", err)
	}
	var pages []Page
	for _, e := range entries {
		m := pageName.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: n, Path: filepath.Join(dir, e.Name())})
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

var magic = []byte("%PDF-")

// IsPDF checks that path exists and starts with the PDF magic bytes.
func IsPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("pdf: open: %w", err)
	}
	defer func() { _ = f.Close() }()
	return SniffPDF(f)
}

// SniffPDF checks the PDF magic bytes at the start of r.
func SniffPDF(r io.Reader) error {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || !bytes.Equal(head, magic) {
		return errors.New("pdf: not a PDF file")
	}
	return nil
}
