package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/memscreen/memscreend/internal/apperr"
)

// indicatorMessageType enumerates the Floating Indicator IPC vocabulary
// (spec §6). It replaces the native client's dynamic tag dispatch with a
// closed Go enum (spec §9's REDESIGN FLAGS): unknown types are rejected
// outright instead of silently falling through.
type indicatorMessageType string

const (
	indicatorShowFloatingBall       indicatorMessageType = "showFloatingBall"
	indicatorHideFloatingBall       indicatorMessageType = "hideFloatingBall"
	indicatorSetRecordingState      indicatorMessageType = "setRecordingState"
	indicatorSetPausedState         indicatorMessageType = "setPausedState"
	indicatorSetTrackingState       indicatorMessageType = "setTrackingState"
	indicatorOpenQuickChat          indicatorMessageType = "openQuickChat"
	indicatorOpenVideos             indicatorMessageType = "openVideos"
	indicatorOpenSettings           indicatorMessageType = "openSettings"
	indicatorSwitchTab              indicatorMessageType = "switchTab"
	indicatorPrepareRegionSelection indicatorMessageType = "prepareRegionSelection"
	indicatorPrepareWindowSelection indicatorMessageType = "prepareWindowSelection"
	indicatorPrepareScreenRecording indicatorMessageType = "prepareScreenRecording"
	indicatorQuitApp                indicatorMessageType = "quitApp"
)

func (t indicatorMessageType) valid() bool {
	switch t {
	case indicatorShowFloatingBall, indicatorHideFloatingBall, indicatorSetRecordingState,
		indicatorSetPausedState, indicatorSetTrackingState, indicatorOpenQuickChat,
		indicatorOpenVideos, indicatorOpenSettings, indicatorSwitchTab,
		indicatorPrepareRegionSelection, indicatorPrepareWindowSelection,
		indicatorPrepareScreenRecording, indicatorQuitApp:
		return true
	default:
		return false
	}
}

// indicatorMessage is the one wire shape every Floating Indicator IPC
// message decodes into; which fields are meaningful depends on Type. The
// core only treats these as hints (spec §6) — authoritative state always
// flows back out through the rest of the HTTP API.
type indicatorMessage struct {
	Type            indicatorMessageType `json:"type"`
	IsRecording     *bool                `json:"isRecording,omitempty"`
	IsPaused        *bool                `json:"isPaused,omitempty"`
	IsTracking      *bool                `json:"isTracking,omitempty"`
	Index           *int                 `json:"index,omitempty"`
	ScreenIndex     *int                 `json:"screenIndex,omitempty"`
	ScreenDisplayID string               `json:"screen_display_id,omitempty"`
}

// handleIndicatorPush decodes a Floating Indicator IPC message and logs it
// for now; the native client reads authoritative state back via /recording/
// status, /process/tracking/status, and friends rather than a reply here.
func (s *Server) handleIndicatorPush(w http.ResponseWriter, r *http.Request) {
	var msg indicatorMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if !msg.Type.valid() {
		respondError(w, apperr.Newf(apperr.InvalidArgument, "unrecognized indicator message type %q", msg.Type))
		return
	}

	s.deps.Log.Debug().
		Str("type", string(msg.Type)).
		Msg("floating indicator message")

	respondJSON(w, http.StatusOK, map[string]any{})
}
