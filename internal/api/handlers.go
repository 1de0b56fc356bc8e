package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/pipeline"
	"github.com/ppiankov/concord/internal/source"
)

// ValidateRequest is the body of POST /v1/validate. Either Source or a
// http(s) Ref must be set.
type ValidateRequest struct {
	Source  string `json:"source"`
	Ref     string `json:"ref,omitempty"`
	Title   string `json:"title,omitempty"`
	Hint    string `json:"hint,omitempty"`
	NoCache bool   `json:"noCache,omitempty"`
}

// CouncilRequest is the body of POST /v1/council
type CouncilRequest struct {
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	NoCache bool   `json:"noCache,omitempty"`
}

// CacheResponse reports how many entries a maintenance call removed
type CacheResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text, ref, title := req.Source, req.Ref, req.Title
	if text == "" && ref != "" {
		// Local files are never read on behalf of a remote caller
		if !source.IsURL(ref) {
			respondError(w, http.StatusBadRequest, "ref must be an http(s) URL")
			return
		}
		src, err := s.pipeline.Loader().Load(r.Context(), ref)
		if err != nil {
			s.fail(w, "load source", err)
			return
		}
		text, ref = src.Text, src.Ref
		if title == "" {
			title = src.Title
		}
	}

	result, err := s.pipeline.Validate(r.Context(), pipeline.Request{
		Source:    text,
		Hint:      req.Hint,
		SourceRef: ref,
		Title:     title,
		NoCache:   req.NoCache,
	})
	if err != nil {
		s.fail(w, "validate", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCouncil(w http.ResponseWriter, r *http.Request) {
	var req CouncilRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.pipeline.Council(r.Context(), pipeline.CouncilRequest{
		Prompt:  req.Prompt,
		System:  req.System,
		NoCache: req.NoCache,
	})
	if err != nil {
		s.fail(w, "council", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	respondJSON(w, http.StatusOK, s.cache.Stats())
}

// handleCacheInvalidate removes entries by ?content= or ?settings= hash, or
// everything when neither is given
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotFound, "cache is disabled")
		return
	}

	content := r.URL.Query().Get("content")
	settings := r.URL.Query().Get("settings")

	var removed int
	var err error
	switch {
	case content != "" && settings != "":
		respondError(w, http.StatusBadRequest, "use either content or settings, not both")
		return
	case content != "":
		removed, err = s.cache.InvalidateByContent(r.Context(), content)
	case settings != "":
		removed, err = s.cache.InvalidateBySettings(r.Context(), settings)
	default:
		removed, err = s.cache.Clear(r.Context())
	}
	if err != nil {
		s.fail(w, "invalidate cache", err)
		return
	}

	respondJSON(w, http.StatusOK, CacheResponse{Removed: removed})
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	removed, err := s.cache.SweepExpired(r.Context())
	if err != nil {
		s.fail(w, "sweep cache", err)
		return
	}
	respondJSON(w, http.StatusOK, CacheResponse{Removed: removed})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err), zap.Int("status", status))
	} else {
		s.logger.Warn(op+" rejected", zap.Error(err), zap.Int("status", status))
	}
	respondError(w, status, err.Error())
}
