// Package uploadapi is the HTTP boundary between clients and the addressable
// store: a single-file multipart upload that answers with the content
// identifier.
package uploadapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"xdao.co/taskledger/storage"
)

// DefaultMaxBytes bounds an upload body.
const DefaultMaxBytes = 32 << 20

// Server handles uploads into Store.
type Server struct {
	Store    storage.Store
	MaxBytes int64
	// Tags are attached to every upload; client-supplied keyvalues win.
	Tags   map[string]string
	Logger *slog.Logger
}

// Response is the JSON body of every upload reply.
type Response struct {
	Identifier string `json:"identifier,omitempty"`
	Error      string `json:"error,omitempty"`
	Details    string `json:"details,omitempty"`
}

// Router returns the routes:
//
//	POST /api/upload  multipart field "file", optional field "keyvalues" (JSON object)
//	GET  /health
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/api/upload", s.handleUpload)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, Response{Error: "File too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, Response{Error: "No file uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "No file uploaded"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "Failed to read file", Details: err.Error()})
		return
	}

	kv := map[string]string{}
	if raw := r.FormValue("keyvalues"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &kv); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Error: "Invalid keyvalues", Details: err.Error()})
			return
		}
	}
	meta := storage.Metadata{Name: hdr.Filename, KeyValues: kv}.With(s.Tags)

	id, err := s.Store.Push(r.Context(), data, meta)
	if err != nil {
		s.logger().Error("upload failed", "name", hdr.Filename, "bytes", len(data), "err", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: "Failed to upload to store", Details: err.Error()})
		return
	}
	s.logger().Info("upload stored", "name", hdr.Filename, "bytes", len(data), "cid", id.String())
	writeJSON(w, http.StatusOK, Response{Identifier: id.String()})
}
