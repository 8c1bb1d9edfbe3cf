package httpapi

import "net/http"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runtime := "ok"
	if !s.deps.Runtime.Ping(ctx) {
		runtime = "unavailable"
	}

	db := "ok"
	if err := s.deps.Store.Ping(ctx); err != nil {
		db = "error"
	}

	status := "ok"
	if runtime != "ok" || db != "ok" {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"runtime": runtime,
		"db":      db,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Config
	respondJSON(w, http.StatusOK, map[string]any{
		"runtime_base_url":               cfg.RuntimeBaseURL,
		"vision_model":                   cfg.VisionModel,
		"embedding_model":                cfg.EmbeddingModel,
		"chat_model":                     cfg.ChatModel,
		"recording_default_duration_sec": cfg.RecordingDefaultDurationSec,
		"recording_default_interval_sec": cfg.RecordingDefaultIntervalSec,
		"recording_audio_source":         cfg.RecordingAudioSource,
		"auto_track_input_with_recording": s.deps.Settings.AutoTrackInput(),
		"analysis_frame_stride":          cfg.AnalysisFrameStride,
		"max_concurrent_analyses":        cfg.MaxConcurrentAnalyses,
		"api_bind":                       cfg.APIBind,
		"chat_history_window":            cfg.ChatHistoryWindow,
		"active_chat_model":              s.deps.Settings.ActiveModel(),
		"paths": map[string]string{
			"root":    s.deps.Paths.Root,
			"videos":  s.deps.Paths.Videos,
			"audio":   s.deps.Paths.Audio,
			"db":      s.deps.Paths.DB,
			"vectors": s.deps.Paths.Vectors,
			"logs":    s.deps.Paths.Logs,
			"runtime": s.deps.Paths.Runtime,
		},
	})
}
