package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"askdb/internal/database"
)

type uploadResponse struct {
	ID          string   `json:"id"`
	Tables      []string `json:"tables"`
	ProperNouns int      `json:"proper_nouns"`
}

type askRequest struct {
	Question string `json:"question"`
}

type indexResponse struct {
	ID          string `json:"id"`
	ProperNouns int    `json:"proper_nouns"`
	Shared      bool   `json:"shared"`
}

// Upload ingests the multipart field "file" and registers the database
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, `Multipart field "file" is required`)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		respondError(w, http.StatusBadRequest, "Upload has no file name")
		return
	}

	id := uuid.NewString()
	logger := s.logger.With("database_id", id)
	dir := filepath.Join(s.cfg.DataDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("Failed to create upload dir", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	path := filepath.Join(dir, name)
	if err := saveUpload(file, path); err != nil {
		os.RemoveAll(dir)
		logger.Error("Failed to save upload", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx := r.Context()
	h, err := database.IngestFile(ctx, path, dir, logger, database.WithMaxRows(s.cfg.MaxRows))
	if err != nil {
		os.RemoveAll(dir)
		logger.Warn("Ingestion failed", "file", name, "error", err)
		respondError(w, http.StatusBadRequest, "Could not read database: "+err.Error())
		return
	}

	e := &entry{id: id, dir: dir, handle: h, created: time.Now()}
	count := 0
	if s.cfg.NewIndex != nil {
		e.index = s.cfg.NewIndex()
		n, err := e.index.Rebuild(ctx, h, s.cfg.StripNumbers)
		if err != nil {
			logger.Warn("Proper noun index build failed", "error", err)
		}
		count = n
	}

	e.asker, err = s.build(h, e.index)
	if err != nil {
		h.Close()
		os.RemoveAll(dir)
		logger.Error("Failed to build workflow", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.registry.add(e)
	logger.Info("Database registered", "file", name, "dialect", h.Dialect(), "proper_nouns", count)
	respondJSON(w, http.StatusCreated, uploadResponse{
		ID:          id,
		Tables:      h.TableNames(),
		ProperNouns: count,
	})
}

func saveUpload(src io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Tables lists the tables of a registered database
func (s *Server) Tables(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.registry.release(e)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     e.id,
		"tables": e.handle.TableNames(),
	})
}

// Ask answers one question
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.registry.release(e)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "Question is required")
		return
	}

	respondJSON(w, http.StatusOK, e.asker.Handle(r.Context(), question))
}

// RebuildIndex rebuilds the proper-noun index. Concurrent rebuilds of the
// same database share one run.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.registry.release(e)
	if e.index == nil {
		respondError(w, http.StatusConflict, "Proper noun index is disabled")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, shared := s.rebuilds.Do(e.id, func() (interface{}, error) {
		return e.index.Rebuild(ctx, e.handle, s.cfg.StripNumbers)
	})
	if err != nil {
		s.logger.Warn("Index rebuild failed", "database_id", e.id, "error", err)
		respondError(w, http.StatusBadGateway, "Index rebuild failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, indexResponse{
		ID:          e.id,
		ProperNouns: v.(int),
		Shared:      shared,
	})
}

// Delete closes a registered database and removes its files
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.registry.remove(id) {
		respondError(w, http.StatusNotFound, "Database not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"databases": s.registry.len(),
	})
}

// lookup acquires the database named in the path. Callers release it.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	e, ok := s.registry.acquire(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "Database not found")
		return nil, false
	}
	return e, true
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondJSON is a helper function to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Default().Warn("JSON encoding error", "error", err)
	}
}
