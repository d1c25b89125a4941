// Package server provides the HTTP API for uploads, job polling, and result
// downloads.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/cache"
	"github.com/adlens/adlens/pkg/config"
	"github.com/adlens/adlens/pkg/dbload"
	"github.com/adlens/adlens/pkg/errors"
	"github.com/adlens/adlens/pkg/export"
	"github.com/adlens/adlens/pkg/ingest"
)

// Server handles HTTP requests for the ingestion API.
type Server struct {
	cfg        *config.Config
	controller *ingest.Controller
	mux        *http.ServeMux

	// cache and store are optional collaborators; nil disables them.
	cache *cache.ResultCache
	store *dbload.Store
}

// New creates a server around an already-wired controller.
func New(cfg *config.Config, controller *ingest.Controller, resultCache *cache.ResultCache, store *dbload.Store) *Server {
	s := &Server{
		cfg:        cfg,
		controller: controller,
		mux:        http.NewServeMux(),
		cache:      resultCache,
		store:      store,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/api/status/", s.handleStatus)
	s.mux.HandleFunc("/api/result/", s.handleResult)
	s.mux.HandleFunc("/api/export/", s.handleExport)
	s.mux.HandleFunc("/api/queue", s.handleQueue)
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/health", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// handleUpload receives a multipart CSV upload, validates it, and enqueues
// an ingestion job. Validation failures return synchronously with a coded
// message; everything later is observed through the status resource.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Reject oversized uploads before anything is written to disk.
	if max := s.cfg.Upload.MaxFileSize; max > 0 && header.Size > max {
		jsonError(w, errors.Sanitize(errors.FileTooLarge(header.Size, max)),
			http.StatusRequestEntityTooLarge)
		return
	}

	jobID := uuid.New().String()
	uploadPath := filepath.Join(s.cfg.Upload.UploadDir, jobID+"_"+filepath.Base(header.Filename))

	dst, err := os.Create(uploadPath)
	if err != nil {
		log.Printf("[server] create upload: %v", err)
		jsonError(w, "could not store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(uploadPath)
		jsonError(w, "could not store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	if err := ingest.ValidateUpload(uploadPath, s.cfg.Upload.MaxFileSize); err != nil {
		os.Remove(uploadPath)
		jsonError(w, errors.Sanitize(err), statusForError(err))
		return
	}

	info, err := os.Stat(uploadPath)
	if err != nil {
		jsonError(w, "could not store upload", http.StatusInternalServerError)
		return
	}

	job := &ingest.Job{
		ID:         jobID,
		FileName:   header.Filename,
		FilePath:   uploadPath,
		StatusPath: s.statusPath(jobID),
		FileSize:   info.Size(),
	}
	if p := r.FormValue("priority"); p != "" {
		fmt.Sscanf(p, "%d", &job.Priority)
	}

	if err := ingest.NewStatusWriter(job.StatusPath).Write(&ingest.Status{
		JobID:    jobID,
		FileName: header.Filename,
		Status:   ingest.StatusQueued,
	}); err != nil {
		os.Remove(uploadPath)
		jsonError(w, "could not record job", http.StatusInternalServerError)
		return
	}

	if !s.controller.Add(job) {
		os.Remove(uploadPath)
		jsonError(w, errors.Sanitize(errors.New(errors.CodeDuplicateJob, "job already queued or running")),
			http.StatusConflict)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"jobId":  jobID,
		"status": ingest.StatusQueued,
	})
}

// handleStatus serves the polled job-state snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDFromPath(w, r, "/api/status/")
	if !ok {
		return
	}

	status, err := ingest.ReadStatus(s.statusPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			jsonError(w, "unknown job", http.StatusNotFound)
			return
		}
		jsonError(w, "could not read status", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, status)
}

// handleResult serves the materialized snapshot, consulting the read-through
// cache first when one is configured.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDFromPath(w, r, "/api/result/")
	if !ok {
		return
	}

	res, err := s.loadResult(r.Context(), jobID)
	if err != nil {
		if os.IsNotExist(err) {
			jsonError(w, "result not available", http.StatusNotFound)
			return
		}
		jsonError(w, "could not read result", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, res)
}

// handleExport streams the snapshot as an XLSX workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.jobIDFromPath(w, r, "/api/export/")
	if !ok {
		return
	}

	res, err := s.loadResult(r.Context(), jobID)
	if err != nil {
		if os.IsNotExist(err) {
			jsonError(w, "result not available", http.StatusNotFound)
			return
		}
		jsonError(w, "could not read result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "adlens-"+jobID+".xlsx"))

	if err := export.WriteXLSX(res, w); err != nil {
		log.Printf("[server] export %s: %v", jobID, err)
	}
}

// handleQueue reports controller occupancy.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queued, running := s.controller.Snapshot()
	jsonResponse(w, map[string]interface{}{
		"queued":  queued,
		"running": running,
	})
}

// handleSessions lists recent import sessions from the permanent store.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonResponse(w, []dbload.Session{})
		return
	}
	sessions, err := s.store.Sessions(r.Context(), 50)
	if err != nil {
		jsonError(w, "could not list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []dbload.Session{}
	}
	jsonResponse(w, sessions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// loadResult reads a snapshot from cache or disk, populating the cache on a
// disk hit.
func (s *Server) loadResult(ctx context.Context, jobID string) (*aggregate.Result, error) {
	if s.cache != nil {
		if res, ok := s.cache.Get(ctx, jobID); ok {
			return res, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.Upload.ResultsDir, jobID+".json"))
	if err != nil {
		return nil, err
	}

	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, jobID, &res)
	}
	return &res, nil
}

func (s *Server) statusPath(jobID string) string {
	return filepath.Join(s.cfg.Upload.ResultsDir, jobID+".status.json")
}

// jobIDFromPath extracts and sanity-checks the job ID path segment.
func (s *Server) jobIDFromPath(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	jobID := strings.TrimPrefix(r.URL.Path, prefix)
	if jobID == "" || strings.ContainsAny(jobID, "/\\.") {
		jsonError(w, "invalid job id", http.StatusBadRequest)
		return "", false
	}
	return jobID, true
}

// statusForError maps validation codes onto HTTP statuses.
func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.CodeBadExtension:
		return http.StatusUnsupportedMediaType
	case errors.CodeDuplicateJob:
		return http.StatusConflict
	case errors.CodeFileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
