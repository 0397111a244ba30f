// Package server exposes a generated collection over HTTP.
//
// Routes:
//
//	GET /healthz           liveness probe
//	GET /metadata          every record, sorted by index
//	GET /metadata/{id}     one metadata record, as written to disk
//	GET /images/{id}.png   one composited image
//	GET /report            the run report of the last generation
//
// Ids are canonical non-negative integers; anything else is a 404.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/nftgen/pkg/buildinfo"
	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/pipeline"
)

// DefaultAddr is the listen address used when none is given.
const DefaultAddr = ":8080"

// Server serves one output directory.
type Server struct {
	dir    string
	logger *log.Logger
	router chi.Router
}

// New creates a server for the output root dir.
func New(dir string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{dir: dir, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metadata", s.handleMetadataList)
	r.Get("/metadata/{id}", s.handleMetadata)
	r.Get("/images/{file}", s.handleImage)
	r.Get("/report", s.handleReport)
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving collection", "dir", s.dir, "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Get().Version,
	})
}

func (s *Server) handleMetadataList(w http.ResponseWriter, r *http.Request) {
	entries, err := metadata.ReadAll(filepath.Join(s.dir, pipeline.MetadataDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusOK, []metadata.Record{})
			return
		}
		s.fail(w, r, err)
		return
	}
	records := make([]metadata.Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(filepath.Join(s.dir, pipeline.MetadataDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	id, ok := parseID(strings.TrimSuffix(file, ".png"))
	if !ok || !strings.HasSuffix(file, ".png") {
		http.NotFound(w, r)
		return
	}
	s.serveFile(w, r, filepath.Join(s.dir, pipeline.ImagesDir, id+".png"))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, filepath.Join(s.dir, pipeline.ReportFile))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// parseID accepts only canonical non-negative integers, so "007" and "+7"
// never alias file 7.
func parseID(s string) (string, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return "", false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
