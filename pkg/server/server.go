// Package server exposes the memory engine over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/memory"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	svc    *memory.Service
	router chi.Router
}

type messageRequest struct {
	Content string `json:"content"`
	Speaker string `json:"speaker"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type threadRequest struct {
	Topic string `json:"topic"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type contextResponse struct {
	Summary  string           `json:"summary"`
	Messages []memory.Message `json:"messages"`
}

// New builds the router. gatherer backs /metrics and may be nil.
func New(svc *memory.Service, gatherer prometheus.Gatherer) *Server {
	s := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/memory", func(r chi.Router) {
		r.Post("/message", s.handleMessage)
		r.Post("/query", s.handleQuery)
		r.Get("/context", s.handleGetContext)
		r.Delete("/context", s.handleClearContext)
		r.Get("/threads", s.handleListThreads)
		r.Post("/threads", s.handleNewThread)
		r.Get("/threads/{id}", s.handleGetThread)
		r.Delete("/threads/{id}", s.handleArchiveThread)
	})
	r.Route("/api/contacts", func(r chi.Router) {
		r.Get("/search", s.handleSearchContacts)
		r.Get("/{id}/history", s.handleContactHistory)
		r.Post("/{id}/notes", s.handleAddNote)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Routes exposes the router for route introspection.
func (s *Server) Routes() chi.Routes { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("server", "HTTP API listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.InfoC("server", "HTTP API stopped")
		return nil
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		logger.DebugCF("server", "Request served", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(started).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "memory": st})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in messageRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	res := s.svc.Process(r.Context(), memory.ParseSpeaker(in.Speaker), in.Content)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in queryRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Query(r.Context(), in.Question))
}

func (s *Server) handleGetContext(w http.ResponseWriter, _ *http.Request) {
	sys := s.svc.System()
	writeJSON(w, http.StatusOK, contextResponse{Summary: sys.ContextSummary(), Messages: sys.Context()})
}

func (s *Server) handleClearContext(w http.ResponseWriter, _ *http.Request) {
	s.svc.System().ClearContext()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListThreads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.System().Threads())
}

func (s *Server) handleNewThread(w http.ResponseWriter, r *http.Request) {
	var in threadRequest
	if !decodeOptionalJSON(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusCreated, s.svc.System().NewThread(strings.TrimSpace(in.Topic)))
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	th, err := s.svc.System().Thread(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleArchiveThread(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.System().ArchiveThread(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSearchContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.System().SearchContacts(r.URL.Query().Get("q")))
}

func (s *Server) handleContactHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.System().GetContactHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var in noteRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Note) == "" {
		http.Error(w, "note is required", http.StatusBadRequest)
		return
	}
	c, err := s.svc.System().Contacts().AddNote(r.Context(), chi.URLParam(r, "id"), in.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptionalJSON accepts an empty body, chunked or not, leaving v as is.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrContactNotFound), errors.Is(err, memory.ErrThreadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("server", "Response encode failed", map[string]interface{}{"error": err.Error()})
	}
}
