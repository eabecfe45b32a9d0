package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/export"
	"github.com/practicos/internal/ocr"
	"github.com/practicos/internal/pdf"
	"github.com/practicos/internal/profile"
	"github.com/practicos/internal/store"
)

const pageOne = `Proyecto: Edificio Residencial Las Flores
Cliente:   Inmobiliaria XYZ
Fecha: 15/03/2025
Total: $1,500,000.00`

const pageTwo = `CIMENTACIÓN
102 Cimentación de concreto m³ 75 1,200.00 90,000.00`

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &app.Config{
		OCRLanguage: "spa",
		OCRDPI:      300,
		OCRWorkers:  2,
		DataRoot:    root,
	}
	cfg.Resolve()
	require.NoError(t, os.MkdirAll(cfg.InputPath, 0o755))
	return cfg
}

// pageImage writes a PNG whose content depends on seed so that distinct
// seeds hash differently.
func pageImage(t *testing.T, dir string, n int, reverse bool) pdf.Page {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 90, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 90; x++ {
			v := uint8(x * 255 / 89)
			if reverse {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	path := filepath.Join(dir, filepath.Base(t.Name())+"-"+string(rune('a'+n))+".png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return pdf.Page{Number: n, Path: path}
}

type fakeRasterizer struct {
	pages []pdf.Page
	err   error
}

func (f *fakeRasterizer) Render(context.Context, string, int) (*pdf.Rendering, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pdf.Rendering{Pages: f.pages}, nil
}

type fakeEngine struct {
	mu    sync.Mutex
	texts map[string]string
	calls []string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in.ID)
	text, ok := f.texts[in.ID]
	if !ok {
		return ocr.Result{}, errors.New("unreadable")
	}
	return ocr.Result{InputID: in.ID, Text: text}, nil
}

type stubExtractor struct {
	out estimate.Enhancement
	err error
}

func (s stubExtractor) Name() string { return "stub" }

func (s stubExtractor) Enhance(context.Context, string) (estimate.Enhancement, error) {
	return s.out, s.err
}

func TestProcessorProcess(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	pages := []pdf.Page{pageImage(t, dir, 1, true), pageImage(t, dir, 2, false)}
	engine := &fakeEngine{texts: map[string]string{"page-1": pageOne, "page-2": pageTwo}}
	extractor := stubExtractor{out: estimate.Enhancement{Metadata: estimate.EnhancedMetadata{Phone: "5512345678"}}}

	p := NewProcessor(cfg, profile.Default(), &fakeRasterizer{pages: pages}, engine, extractor)
	doc, err := p.Process(context.Background(), "/in/obra.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, doc.Pages)
	assert.Equal(t, "Inmobiliaria XYZ", doc.Metadata.Client)
	assert.Equal(t, "1,500,000.00", doc.Metadata.TotalAmount)
	assert.Equal(t, 1, doc.ItemCount())
	require.NotNil(t, doc.Enhanced)
	assert.Equal(t, estimate.Text("5512345678"), doc.Enhanced.Phone)
	assert.Empty(t, doc.PageErrors)
}

func TestProcessorSkipsDuplicatePage(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	first := pageImage(t, dir, 1, true)
	dup := pdf.Page{Number: 2, Path: first.Path}
	third := pageImage(t, dir, 3, false)
	engine := &fakeEngine{texts: map[string]string{"page-1": pageOne, "page-3": pageTwo}}

	p := NewProcessor(cfg, profile.Default(), &fakeRasterizer{pages: []pdf.Page{first, dup, third}}, engine, nil)
	doc, err := p.Process(context.Background(), "obra.pdf")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"page-1", "page-3"}, engine.calls)
	assert.Equal(t, 3, doc.Pages)
	assert.Nil(t, doc.Enhanced)
}

// textPage renders an estimate-like page: the same header and column layout
// on every page, with item lines that depend on n.
func textPage(t *testing.T, dir string, n int) pdf.Page {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 620, 877))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	d := font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	write := func(y int, text string) {
		d.Dot = fixed.P(40, y)
		d.DrawString(text)
	}
	write(40, "PRESUPUESTO DE OBRA")
	write(60, fmt.Sprintf("Pagina %d", n))
	for i := range 40 {
		code := n*100 + i
		write(100+i*18, fmt.Sprintf("%d Partida %d-%d concreto m2 %d %d.00 %d.00", code, n, i, i+1, code*3, (i+1)*code*3))
	}
	return writePage(t, dir, n, img)
}

func writePage(t *testing.T, dir string, n int, img image.Image) pdf.Page {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("page-%d.png", n))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return pdf.Page{Number: n, Path: path}
}

func TestProcessorKeepsDistinctTextPages(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	var pages []pdf.Page
	for n := 1; n <= 5; n++ {
		pages = append(pages, textPage(t, dir, n))
	}
	data, err := os.ReadFile(pages[4].Path)
	require.NoError(t, err)
	copyPath := filepath.Join(dir, "page-6.png")
	require.NoError(t, os.WriteFile(copyPath, data, 0o644))
	pages = append(pages, pdf.Page{Number: 6, Path: copyPath})

	engine := &fakeEngine{texts: map[string]string{
		"page-1": pageOne, "page-2": pageTwo, "page-3": pageTwo, "page-4": pageTwo, "page-5": pageTwo,
	}}
	doc, err := NewProcessor(cfg, profile.Default(), &fakeRasterizer{pages: pages}, engine, nil).
		Process(context.Background(), "obra.pdf")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"page-1", "page-2", "page-3", "page-4", "page-5"}, engine.calls)
	assert.Equal(t, 6, doc.Pages)
	assert.Equal(t, 4, doc.ItemCount())
}

func TestProcessorPageErrorsAndAIFailure(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	pages := []pdf.Page{pageImage(t, dir, 1, true), pageImage(t, dir, 2, false)}
	engine := &fakeEngine{texts: map[string]string{"page-1": pageOne}}
	extractor := stubExtractor{err: errors.New("rate limited")}

	doc, err := NewProcessor(cfg, profile.Default(), &fakeRasterizer{pages: pages}, engine, extractor).
		Process(context.Background(), "obra.pdf")
	require.NoError(t, err)
	require.Len(t, doc.PageErrors, 1)
	assert.Equal(t, 2, doc.PageErrors[0].Page)
	assert.Nil(t, doc.Enhanced)
	assert.Equal(t, "Edificio Residencial Las Flores", doc.Metadata.ProjectName)
}

func TestProcessorNoText(t *testing.T) {
	cfg := testConfig(t)
	pages := []pdf.Page{pageImage(t, t.TempDir(), 1, true)}
	_, err := NewProcessor(cfg, profile.Default(), &fakeRasterizer{pages: pages}, &fakeEngine{}, nil).
		Process(context.Background(), "obra.pdf")
	assert.ErrorIs(t, err, errNoText)
}

func TestProcessorRenderError(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewProcessor(cfg, profile.Default(), &fakeRasterizer{err: pdf.ErrNoPages}, &fakeEngine{}, nil).
		Process(context.Background(), "obra.pdf")
	assert.ErrorIs(t, err, pdf.ErrNoPages)
}

type fakeProcessor struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeProcessor) Process(_ context.Context, path string) (*estimate.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return nil, errors.New("broken PDF")
	}
	return &estimate.Document{Source: path, Pages: 1, Metadata: estimate.Metadata{Client: "Cliente " + name}}, nil
}

type memoryRecorder struct {
	mu   sync.Mutex
	docs map[string]*store.Document
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{docs: map[string]*store.Document{}}
}

func (m *memoryRecorder) FindByDigest(_ context.Context, digest string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[digest]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (m *memoryRecorder) Insert(_ context.Context, d *store.Document, items []store.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ItemCount = len(items)
	m.docs[d.Digest] = d
	return nil
}

func writeInput(t *testing.T, cfg *app.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputPath, name), []byte(content), 0o644))
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "b.pdf", "%PDF-b")
	writeInput(t, cfg, "a.PDF", "%PDF-a")
	writeInput(t, cfg, "notas.txt", "x")
	writeInput(t, cfg, "c.pdf", "%PDF-c")

	proc := &fakeProcessor{fail: map[string]bool{"b.pdf": true}}
	rec := newMemoryRecorder()
	svc := NewProcessService(cfg, profile.Default(), proc, rec)

	summary, err := svc.Run(context.Background(), Options{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 2, Skipped: 0, Failed: 1}, summary)
	assert.Equal(t, []string{"a.PDF", "b.pdf", "c.pdf"}, proc.calls)

	f, err := excelize.OpenFile(filepath.Join(cfg.OutputPath, "a.xlsx"))
	require.NoError(t, err)
	v, err := f.GetCellValue("Presupuesto", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Cliente a.PDF", v)
	require.NoError(t, f.Close())
	assert.FileExists(t, filepath.Join(cfg.OutputPath, "c.json"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputPath, "b.xlsx"))

	statuses := map[string]string{}
	for _, d := range rec.docs {
		statuses[d.Source] = d.Status
	}
	assert.Equal(t, map[string]string{
		"a.PDF": store.StatusProcessed,
		"b.pdf": store.StatusFailed,
		"c.pdf": store.StatusProcessed,
	}, statuses)
}

func TestRunSkipsProcessedDuplicates(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.pdf", "%PDF-same")
	writeInput(t, cfg, "copia.pdf", "%PDF-same")
	writeInput(t, cfg, "fallido.pdf", "%PDF-failed")

	proc := &fakeProcessor{fail: map[string]bool{"fallido.pdf": true}}
	rec := newMemoryRecorder()
	svc := NewProcessService(cfg, profile.Default(), proc, rec)

	summary, err := svc.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Skipped: 1, Failed: 1}, summary)

	// Failed files are retried, processed ones are skipped.
	proc.fail = nil
	summary, err = svc.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Skipped: 2, Failed: 0}, summary)

	summary, err = svc.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 3}, summary)
}

func TestRunWithoutRecorder(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.pdf", "%PDF-same")
	writeInput(t, cfg, "b.pdf", "%PDF-same")
	svc := NewProcessService(cfg, profile.Default(), &fakeProcessor{}, nil)

	summary, err := svc.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
}

func TestRunNoFiles(t *testing.T) {
	cfg := testConfig(t)
	svc := NewProcessService(cfg, profile.Default(), &fakeProcessor{}, nil)
	summary, err := svc.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.DirExists(t, cfg.OutputPath)
}

func TestRunMissingInputDir(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.InputPath))
	_, err := NewProcessService(cfg, profile.Default(), &fakeProcessor{}, nil).Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.pdf", "%PDF-a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProcessService(cfg, profile.Default(), &fakeProcessor{}, nil).Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher(t *testing.T) {
	cfg := testConfig(t)
	svc := NewProcessService(cfg, profile.Default(), &fakeProcessor{}, nil)
	w := NewWatcher(svc, cfg.InputPath, 40*time.Millisecond, Options{})

	done := make(chan string, 4)
	w.OnHandled(func(path string, result *FileResult, err error) {
		if err != nil {
			done <- err.Error()
			return
		}
		done <- filepath.Base(result.Output)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-errc)
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	writeInput(t, cfg, "ignorado.txt", "x")
	writeInput(t, cfg, "nuevo.pdf", "%PDF-nuevo")

	select {
	case out := <-done:
		assert.Equal(t, "nuevo.xlsx", out)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not process the new PDF")
	}
	assert.FileExists(t, export.OutputPath(cfg.OutputPath, "nuevo.pdf", ".xlsx"))
}

func TestExtractRecordsUpload(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	ok := filepath.Join(dir, "upload-1.pdf")
	bad := filepath.Join(dir, "upload-2.pdf")
	require.NoError(t, os.WriteFile(ok, []byte("%PDF-ok"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-bad"), 0o644))

	rec := newMemoryRecorder()
	svc := NewProcessService(cfg, profile.Default(), &fakeProcessor{fail: map[string]bool{"upload-2.pdf": true}}, rec)

	doc, err := svc.Extract(context.Background(), ok, "Obra Norte.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Obra Norte.pdf", doc.Source)
	assert.NotEmpty(t, doc.Digest)

	_, err = svc.Extract(context.Background(), bad, "Obra Sur.pdf")
	require.Error(t, err)

	statuses := map[string]string{}
	for _, d := range rec.docs {
		statuses[d.Source] = d.Status
	}
	assert.Equal(t, map[string]string{
		"Obra Norte.pdf": store.StatusProcessed,
		"Obra Sur.pdf":   store.StatusFailed,
	}, statuses)
	entries, err := os.ReadDir(cfg.OutputPath)
	if err == nil {
		assert.Empty(t, entries, "extract writes no workbook")
	}
}
