// Package server exposes the conversion pipeline over HTTP: documents are
// uploaded as multipart files and come back as structured lesson data, or as
// a rendered PDF when asked.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/digimakers/lessonpipe/lesson"
	"github.com/digimakers/lessonpipe/pipeline"
	"github.com/digimakers/lessonpipe/render"
	"github.com/digimakers/lessonpipe/store"
)

// Config configures the HTTP surface.
type Config struct {
	// MaxUploadSize bounds one multipart request body (default: 50 MB).
	MaxUploadSize int64 `json:"max_upload_size" yaml:"max_upload_size"`

	// Logger for request/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server handles conversion requests.
type Server struct {
	converter *pipeline.Converter
	renderer  render.Renderer
	log       *store.Store
	cfg       Config
	logger    *slog.Logger
}

// New creates a Server. renderer and log are optional: without a renderer
// PDF output is rejected, without a log conversions are not recorded.
func New(conv *pipeline.Converter, renderer render.Renderer, log *store.Store, cfg Config) *Server {
	cfg.defaults()
	return &Server{
		converter: conv,
		renderer:  renderer,
		log:       log,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/convert", s.handleConvert)
	r.Get("/conversions", s.handleHistory)
	return r
}

// fileResult is the per-file outcome of one upload.
type fileResult struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Elapsed string         `json:"elapsed,omitempty"`
	Lesson  *lesson.Lesson `json:"lesson,omitempty"`
}

// handleConvert accepts one or more .docx uploads in the "files" field and
// converts each one. A failed file never fails the batch; every file gets
// its own result entry. With ?format=pdf and exactly one file, the rendered
// PDF is returned instead of JSON.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, `no files in "files" field`)
		return
	}

	wantPDF := r.URL.Query().Get("format") == "pdf"
	if wantPDF && s.renderer == nil {
		writeError(w, http.StatusNotImplemented, "pdf rendering is not configured")
		return
	}
	if wantPDF && len(files) != 1 {
		writeError(w, http.StatusBadRequest, "pdf output requires exactly one file")
		return
	}

	dir, err := os.MkdirTemp("", "lessonpipe-upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create upload dir")
		return
	}
	defer os.RemoveAll(dir)

	results := make([]fileResult, 0, len(files))
	var converted *lesson.Lesson

	for _, fh := range files {
		res := s.convertUpload(r.Context(), dir, fh)
		if res.Status == store.StatusOK {
			converted = res.Lesson
		}
		results = append(results, res)
	}

	if wantPDF {
		if converted == nil {
			writeJSON(w, http.StatusUnprocessableEntity, results)
			return
		}
		pdf, err := s.renderer.Render(r.Context(), converted)
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("render pdf: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		w.Write(pdf)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// convertUpload stages one uploaded file on disk and runs the pipeline on it.
func (s *Server) convertUpload(ctx context.Context, dir string, fh *multipart.FileHeader) fileResult {
	name := filepath.Base(fh.Filename)
	res := fileResult{Name: name}

	if !strings.HasSuffix(strings.ToLower(name), ".docx") {
		res.Status = store.StatusFailed
		res.Error = "not a .docx file"
		return res
	}

	path := filepath.Join(dir, uuid.NewString()+".docx")
	if err := saveUpload(fh, path); err != nil {
		res.Status = store.StatusFailed
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	l, err := s.converter.Convert(ctx, path)
	elapsed := time.Since(start)
	res.Elapsed = elapsed.Round(time.Millisecond).String()

	if err != nil {
		s.logger.Error("upload conversion failed", "name", name, "error", err)
		res.Status = store.StatusFailed
		res.Error = err.Error()
	} else {
		res.Status = store.StatusOK
		res.Lesson = l
	}

	s.record(ctx, name, path, l, err, elapsed)
	return res
}

// record logs the conversion outcome, when a log is configured.
func (s *Server) record(ctx context.Context, name, path string, l *lesson.Lesson, convErr error, elapsed time.Duration) {
	if s.log == nil {
		return
	}
	hash, err := store.HashFile(path)
	if err != nil {
		s.logger.Warn("hash upload failed", "name", name, "error", err)
		return
	}

	c := &store.Conversion{
		ID:          uuid.NewString(),
		SourcePath:  name,
		SourceName:  strings.TrimSuffix(name, ".docx"),
		ContentHash: hash,
		DurationMs:  elapsed.Milliseconds(),
		ConvertedAt: time.Now(),
	}
	if convErr != nil {
		c.Status = store.StatusFailed
		c.ErrorMessage = convErr.Error()
	} else {
		c.Status = store.StatusOK
		c.LessonType = string(l.Type)
		if data, err := json.Marshal(l); err == nil {
			c.LessonJSON = string(data)
		}
	}
	if err := s.log.Insert(ctx, c); err != nil {
		s.logger.Warn("record conversion failed", "name", name, "error", err)
	}
}

// handleHistory returns recent conversions from the log.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, http.StatusNotImplemented, "conversion log is not configured")
		return
	}
	hist, err := s.log.History(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
