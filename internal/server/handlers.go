package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mentis/internal/eval"
	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/retriever"
)

type retrieverInfo struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

type encodeRequest struct {
	// Text overrides the configured diary file when set.
	Text string `json:"text,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRetrievers(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	out := make([]retrieverInfo, 0, len(names))
	for _, name := range names {
		ret, err := s.registry.Get(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		count, err := s.store.Count(r.Context(), ret.Collection())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, retrieverInfo{Name: name, Collection: ret.Collection(), Count: count})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"retrievers": out})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ret, err := s.registry.Get(query.Retriever)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Debug("query request", zap.String("retriever", query.Retriever), zap.String("query", query.Text), zap.Int("top_k", query.TopK))
	result, err := ret.Query(r.Context(), query.Text, query.TopK)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	ret, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	diary := req.Text
	if diary == "" {
		diary, err = s.extractor.Extract(s.config.DiaryPath)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	s.encodeMu.Lock()
	defer s.encodeMu.Unlock()
	s.logger.Info("encode request", zap.String("retriever", ret.Name()), zap.Int("diary_bytes", len(diary)))
	report, err := ret.Encode(r.Context(), diary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"retriever": ret.Name(), "report": report})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	ret, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	app, ok := ret.(retriever.Appender)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "retriever "+ret.Name()+" does not support appending")
		return
	}
	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "request body must carry a non-empty text")
		return
	}

	s.encodeMu.Lock()
	defer s.encodeMu.Unlock()
	s.logger.Info("append request", zap.String("retriever", ret.Name()), zap.Int("entry_bytes", len(req.Text)))
	report, err := app.Append(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"retriever": ret.Name(), "report": report})
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.registry.Get(name); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := eval.ReadArtifact(s.config.Evaluation.ResultsDir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "no evaluation for "+name)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		provErr *models.ProviderError
		cfgErr  *models.ConfigError
	)
	switch {
	case errors.Is(err, retriever.ErrUnknownRetriever):
		return http.StatusNotFound
	case errors.As(err, &provErr):
		return http.StatusBadGateway
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
