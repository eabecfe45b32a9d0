package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/export"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/pdf"
	"github.com/practicos/internal/profile"
	"github.com/practicos/internal/store"
)

const (
	maxUploadBytes = 32 << 20
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type documentLister interface {
	List(ctx context.Context, limit int) ([]store.Document, error)
}

type documentExtractor interface {
	Extract(ctx context.Context, path, source string) (*estimate.Document, error)
}

type Server struct {
	config    *app.Config
	profile   *profile.Profile
	extractor documentExtractor
	documents documentLister
}

func (srv *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", srv.handleDocuments)
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/process", srv.handleProcess)
	})
	return r
}

func (srv *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if srv.documents == nil {
		http.Error(w, "database not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}

	docs, err := srv.documents.List(r.Context(), limit)
	if err != nil {
		logger := log.WithComponent("server")
		logger.Error().Err(err).Msg("list documents")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(docs); err != nil {
		logger := log.WithComponent("server")
		logger.Error().Err(err).Msg("encode documents")
	}
}

func (srv *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("server")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if err := pdf.SniffPDF(file); err != nil {
		http.Error(w, "file is not a PDF", http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	tmpPath, err := srv.saveUpload(file)
	if err != nil {
		logger.Error().Err(err).Msg("save upload")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.Remove(tmpPath) }()

	doc, err := srv.extractor.Extract(r.Context(), tmpPath, filepath.Base(header.Filename))
	if err != nil {
		logger.Error().Err(err).Str("file", header.Filename).Msg("process upload")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, doc, srv.profile); err != nil {
		logger.Error().Err(err).Msg("export upload")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	name := strings.TrimSuffix(doc.Source, filepath.Ext(doc.Source)) + ".xlsx"
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (srv *Server) saveUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(srv.config.TempPath, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(srv.config.TempPath, "upload-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
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

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := log.WithComponent("http")
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
