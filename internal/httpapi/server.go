// Package httpapi implements C12: the HTTP surface spec.md §6 names, wiring
// the Metadata Store, Vector Store, Model Runtime Client, capture sources,
// orchestrator, ingestion pipeline, and query engine onto one
// pattern-based http.ServeMux.
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/capture/audio"
	"github.com/memscreen/memscreend/internal/capture/frames"
	"github.com/memscreen/memscreend/internal/capture/input"
	"github.com/memscreen/memscreend/internal/config"
	"github.com/memscreen/memscreend/internal/ingest"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
	"github.com/memscreen/memscreend/internal/orchestrator"
	"github.com/memscreen/memscreend/internal/paths"
	"github.com/memscreen/memscreend/internal/query"
	"github.com/memscreen/memscreend/internal/store"
	"github.com/memscreen/memscreend/internal/vectorstore"
)

// Deps wires every component the server dispatches requests to.
type Deps struct {
	Store     store.Store
	Vectors   vectorstore.Store
	Runtime   *modelrt.Client
	Orch      *orchestrator.Orchestrator
	Ingest    *ingest.Pipeline
	Query     *query.Engine
	Frames    *frames.Source
	Audio     *audio.Source
	Input     *input.Tracker
	Paths     paths.Paths
	Config    *config.Config
	Settings  *config.RuntimeSettings
	FFmpegPath string

	// EnqueueIngest hands a finalized recording id to the supervisor's
	// ingestion queue (spec §4.9's "emit ingest job" transition). Nil is a
	// valid no-op, used by tests that don't exercise ingestion.
	EnqueueIngest func(recordingID string)

	Log zerolog.Logger
}

// Server exposes memscreend's full HTTP API (spec §6).
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// NewServer builds a Server and registers every route.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /config", s.handleConfig)

	s.mux.HandleFunc("POST /recording/start", s.handleRecordingStart)
	s.mux.HandleFunc("POST /recording/stop", s.handleRecordingStop)
	s.mux.HandleFunc("GET /recording/status", s.handleRecordingStatus)
	s.mux.HandleFunc("GET /recording/status/stream", s.handleRecordingStatusStream)
	s.mux.HandleFunc("GET /recording/screens", s.handleRecordingScreens)
	s.mux.HandleFunc("GET /recording/audio/diagnose", s.handleAudioDiagnose)

	s.mux.HandleFunc("GET /video/list", s.handleVideoList)
	s.mux.HandleFunc("POST /video/reanalyze", s.handleVideoReanalyze)
	s.mux.HandleFunc("POST /video/playable", s.handleVideoPlayable)
	s.mux.HandleFunc("POST /video/delete", s.handleVideoDelete)

	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	s.mux.HandleFunc("GET /chat/models", s.handleChatModels)
	s.mux.HandleFunc("GET /chat/model", s.handleChatModelGet)
	s.mux.HandleFunc("PUT /chat/model", s.handleChatModelPut)
	s.mux.HandleFunc("GET /chat/history", s.handleChatHistory)
	s.mux.HandleFunc("GET /chat/threads", s.handleChatThreadsList)
	s.mux.HandleFunc("POST /chat/threads", s.handleChatThreadsCreate)
	s.mux.HandleFunc("PUT /chat/threads", s.handleChatThreadsSetActive)

	s.mux.HandleFunc("POST /process/tracking/start", s.handleTrackingStart)
	s.mux.HandleFunc("POST /process/tracking/stop", s.handleTrackingStop)
	s.mux.HandleFunc("POST /process/tracking/mark-start", s.handleTrackingMarkStart)
	s.mux.HandleFunc("GET /process/tracking/status", s.handleTrackingStatus)

	s.mux.HandleFunc("GET /process/sessions", s.handleSessionsList)
	s.mux.HandleFunc("POST /process/sessions", s.handleSessionsCreate)
	s.mux.HandleFunc("DELETE /process/sessions", s.handleSessionsDeleteAll)
	s.mux.HandleFunc("GET /process/sessions/{id}", s.handleSessionGet)
	s.mux.HandleFunc("DELETE /process/sessions/{id}", s.handleSessionDelete)
	s.mux.HandleFunc("GET /process/sessions/{id}/analysis", s.handleSessionAnalysis)
	s.mux.HandleFunc("POST /process/sessions/from-tracking", s.handleSessionFromTracking)

	s.mux.HandleFunc("GET /models/catalog", s.handleModelsCatalog)
	s.mux.HandleFunc("POST /models/download", s.handleModelsDownload)

	s.mux.HandleFunc("POST /internal/indicator/push", s.handleIndicatorPush)
}

// requiredModels is the fixed set of models memscreend itself depends on,
// used to seed /models/catalog's installed-state lookups.
func (s *Server) requiredModels() []model.ModelCatalogEntry {
	cfg := s.deps.Config
	return []model.ModelCatalogEntry{
		{Name: cfg.ChatModel, Purpose: model.PurposeChat, Required: true},
		{Name: cfg.VisionModel, Purpose: model.PurposeVision, Required: true},
		{Name: cfg.EmbeddingModel, Purpose: model.PurposeEmbedding, Required: true},
	}
}
