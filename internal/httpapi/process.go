package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

func (s *Server) handleTrackingStart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Input.Start(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleTrackingStop(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Input.Stop(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleTrackingMarkStart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Input.MarkStart(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleTrackingStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"is_tracking": s.deps.Input.Active(),
		"event_count": s.deps.Input.EventCount(),
	})
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.InputSessionList(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type inputEventJSON struct {
	Kind   string  `json:"kind"`
	T      string  `json:"t"`
	Key    string  `json:"key"`
	Button string  `json:"button"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

type sessionCreateRequest struct {
	Events    []inputEventJSON `json:"events"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
}

func (s *Server) handleSessionsCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		badRequest(w, fmt.Errorf("parse start_time: %w", err))
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		badRequest(w, fmt.Errorf("parse end_time: %w", err))
		return
	}

	events := make([]model.InputEvent, len(req.Events))
	for i, e := range req.Events {
		t := start
		if parsed, err := time.Parse(time.RFC3339, e.T); err == nil {
			t = parsed
		}
		events[i] = model.InputEvent{
			Kind: model.InputEventKind(e.Kind), T: t,
			Key: e.Key, Button: e.Button, X: e.X, Y: e.Y, DeltaX: e.DeltaX, DeltaY: e.DeltaY,
		}
	}

	sess, err := s.deps.Store.InputSessionImport(r.Context(), start, end, events)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionsDeleteAll(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.InputSessionList(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	deleted := 0
	for _, sess := range sessions {
		if n, err := s.deps.Store.InputSessionDelete(r.Context(), sess.ID); err == nil {
			_ = n
			deleted++
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, events, err := s.deps.Store.InputSessionGet(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": sess, "events": events})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	count, err := s.deps.Store.InputSessionDelete(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

func (s *Server) handleSessionAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, events, err := s.deps.Store.InputSessionGet(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	analysis := analyzeSession(sess, events)
	respondJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleSessionFromTracking(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Input.Active() {
		respondError(w, apperr.Newf(apperr.InvalidArgument, "no tracking session is active"))
		return
	}
	sess, err := s.deps.Input.Stop(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"events_saved": sess.EventCount,
		"start_time":   sess.StartTime,
		"end_time":     sess.EndTime,
	})
}
