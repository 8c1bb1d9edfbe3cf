package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/orchestrator"
)

type regionJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type recordingStartRequest struct {
	Duration         int         `json:"duration"`
	Interval         float64     `json:"interval"`
	Mode             string      `json:"mode"`
	Region           *regionJSON `json:"region"`
	ScreenIndex      *int        `json:"screen_index"`
	ScreenDisplayID  string      `json:"screen_display_id"`
	WindowTitle      string      `json:"window_title"`
	AudioSource      string      `json:"audio_source"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req recordingStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	mode := model.RecordingMode(req.Mode)
	if mode == "" {
		mode = model.ModeFullscreen
	}
	if !mode.Valid() {
		badRequest(w, fmt.Errorf("mode %q not recognized", req.Mode))
		return
	}

	displayID := req.ScreenDisplayID
	if displayID == "" && req.ScreenIndex != nil {
		displays, err := s.deps.Frames.ListDisplays()
		if err != nil {
			respondError(w, apperr.New(apperr.TargetGone, err))
			return
		}
		for _, d := range displays {
			if d.Index == *req.ScreenIndex {
				displayID = d.DisplayID
				break
			}
		}
	}

	var region model.RegionRect
	if req.Region != nil {
		region = model.RegionRect{X: req.Region.X, Y: req.Region.Y, W: req.Region.W, H: req.Region.H}
	}

	audioSource := model.AudioSourceTag(req.AudioSource)
	if audioSource == "" {
		audioSource = model.AudioNone
	}

	startReq := orchestrator.StartRequest{
		Mode:        mode,
		DisplayID:   displayID,
		Region:      region,
		WindowTitle: req.WindowTitle,
		DurationSec: req.Duration,
		IntervalSec: req.Interval,
		AudioSource: audioSource,
		AutoTrack:   s.deps.Settings.AutoTrackInput(),
		FFmpegPath:  s.deps.FFmpegPath,
	}

	if _, err := s.deps.Orch.Start(r.Context(), startReq); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Orch.Stop()
	respondJSON(w, http.StatusOK, map[string]any{})
}

func snapshotJSON(snap orchestrator.Snapshot) map[string]any {
	return map[string]any{
		"state":        snap.State,
		"is_recording": snap.State == orchestrator.StateRecording,
		"recording_id": snap.RecordingID,
		"started_at":   snap.StartedAt,
		"reason":       snap.Reason,
		"error":        snap.Err,
	}
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, snapshotJSON(s.deps.Orch.Status()))
}

// handleRecordingStatusStream is the recommended SSE addition (spec §9's
// REDESIGN FLAGS discussion): it polls Status() and pushes a JSON event
// whenever it changes, rather than making clients poll /recording/status.
func (s *Server) handleRecordingStatusStream(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		respondError(w, apperr.Newf(apperr.Internal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last orchestrator.Snapshot
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := s.deps.Orch.Status()
			if first || cur != last {
				first = false
				last = cur
				b, _ := json.Marshal(snapshotJSON(cur))
				fmt.Fprintf(w, "data: %s\n\n", b)
				fl.Flush()
			}
		}
	}
}

func (s *Server) handleRecordingScreens(w http.ResponseWriter, r *http.Request) {
	displays, err := s.deps.Frames.ListDisplays()
	if err != nil {
		respondError(w, apperr.New(apperr.TargetGone, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"screens": displays})
}

func (s *Server) handleAudioDiagnose(w http.ResponseWriter, r *http.Request) {
	source := model.AudioSourceTag(r.URL.Query().Get("source"))
	if source == "" {
		source = model.AudioMixed
	}
	diag := s.deps.Audio.Diagnose(source)
	respondJSON(w, http.StatusOK, diag)
}
