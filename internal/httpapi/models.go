package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/modelrt"
)

const defaultModelDownloadTimeout = 10 * time.Minute

func (s *Server) handleModelsCatalog(w http.ResponseWriter, r *http.Request) {
	ready := s.deps.Runtime.Ping(r.Context())

	resp := map[string]any{
		"base_url":       s.deps.Config.RuntimeBaseURL,
		"runtime_ready":  ready,
		"models_disabled": !ready,
	}
	if !ready {
		resp["runtime_error"] = "model runtime is unreachable"
		resp["models"] = []any{}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	entries, errMsg := s.deps.Runtime.Catalog(r.Context(), s.requiredModels())
	if errMsg != "" {
		resp["runtime_error"] = errMsg
		resp["models_disabled"] = true
		resp["models"] = []any{}
		respondJSON(w, http.StatusOK, resp)
		return
	}
	resp["models"] = entries
	respondJSON(w, http.StatusOK, resp)
}

type modelDownloadRequest struct {
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_sec"`
}

// handleModelsDownload drives EnsureModel to completion (or its first error)
// within an optional deadline, reporting the terminal pull status rather
// than streaming progress — the Floating Indicator polls /models/catalog for
// installed state, so this endpoint only needs to block until the pull ends.
func (s *Server) handleModelsDownload(w http.ResponseWriter, r *http.Request) {
	var req modelDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Model == "" {
		badRequest(w, fmt.Errorf("model is required"))
		return
	}

	timeout := defaultModelDownloadTimeout
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	progress, err := s.deps.Runtime.EnsureModel(ctx, req.Model)
	if err != nil {
		respondError(w, err)
		return
	}

	var last modelrt.PullProgress
	for p := range progress {
		last = p
	}
	if ctx.Err() != nil {
		respondError(w, apperr.Newf(apperr.RuntimeUnavailable, "download of %q timed out after %s", req.Model, timeout))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"model":  req.Model,
		"status": last.Status,
	})
}
