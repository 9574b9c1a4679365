// Package server exposes annotation sessions as a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/placement"
	"github.com/Lllllllleong/pdfannotator/internal/render"
	"github.com/Lllllllleong/pdfannotator/internal/session"
)

// DefaultMaxUploadBytes caps the size of an uploaded PDF.
const DefaultMaxUploadBytes = 64 << 20

type Server struct {
	store          *session.Store
	raster         render.Rasterizer
	mux            *http.ServeMux
	MaxUploadBytes int64
}

func New(store *session.Store, raster render.Rasterizer) *Server {
	s := &Server{
		store:          store,
		raster:         raster,
		mux:            http.NewServeMux(),
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
	s.mux.HandleFunc("POST /sessions", s.handleCreate)
	s.mux.HandleFunc("GET /sessions/{id}", s.withSession(s.handleStatus))
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /sessions/{id}/document", s.withSession(s.handleDocument))
	s.mux.HandleFunc("POST /sessions/{id}/zoom", s.withSession(s.handleZoom))
	s.mux.HandleFunc("POST /sessions/{id}/page", s.withSession(s.handlePage))
	s.mux.HandleFunc("POST /sessions/{id}/edits", s.withSession(s.handleClick))
	s.mux.HandleFunc("PUT /sessions/{id}/edits/current", s.withSession(s.handleDraft))
	s.mux.HandleFunc("POST /sessions/{id}/edits/current/commit", s.withSession(s.handleCommit))
	s.mux.HandleFunc("GET /sessions/{id}/pages/{page}/image", s.withSession(s.handlePageImage))
	s.mux.HandleFunc("POST /sessions/{id}/export", s.withSession(s.handleExport))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.store.Get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("PDF exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = "document.pdf"
	}
	resp, err := sess.OnDocumentLoaded(filename, data)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req models.ZoomRequest
	if !decode(w, r, &req) {
		return
	}
	switch req.Action {
	case "in":
		sess.ZoomIn()
	case "out":
		sess.ZoomOut()
	case "reset":
		sess.ResetZoom()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown zoom action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req models.PageRequest
	if !decode(w, r, &req) {
		return
	}
	switch req.Action {
	case "next":
		sess.NextPage()
	case "prev":
		sess.PrevPage()
	case "jump":
		if err := sess.JumpToPage(req.Page); err != nil {
			writeSessionError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown page action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req models.ClickRequest
	if !decode(w, r, &req) {
		return
	}
	if err := sess.OnClickPlaceAnnotation(req.Page, req.X, req.Y, req.Style); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req models.DraftRequest
	if !decode(w, r, &req) {
		return
	}
	if err := sess.SetDraft(req.Text); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if _, err := sess.OnCommitAnnotation(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 || page > sess.TotalPages() {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	data, zoom, err := sess.Source()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	img, err := s.raster.Rasterize(data, page, zoom)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to write page image", "sessionId", sess.ID(), "page", page, "error", err)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, filename, err := sess.OnExport(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write export", "sessionId", sess.ID(), "error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Could not decode request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "could not parse JSON")
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrPageOutOfRange),
		errors.Is(err, session.ErrOutsidePage),
		errors.Is(err, placement.ErrInvalidAnnotation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoDocument), errors.Is(err, session.ErrNoEdit):
		return http.StatusConflict
	case errors.Is(err, session.ErrDocumentLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, render.ErrRasterUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", code, "error", err)
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
