// Package config loads and holds memscreend's recognized configuration
// options (spec §4.1), merging defaults, an optional YAML file, and
// environment variables through Viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/memscreen/memscreend/internal/model"
)

// recognizedKeys is the closed set of options spec §4.1 names. Anything else
// found in the config file is reported, not applied.
var recognizedKeys = map[string]bool{
	"runtime_base_url":                true,
	"vision_model":                    true,
	"embedding_model":                 true,
	"chat_model":                      true,
	"recording_default_duration_sec":  true,
	"recording_default_interval_sec":  true,
	"recording_audio_source":          true,
	"auto_track_input_with_recording": true,
	"analysis_frame_stride":           true,
	"max_concurrent_analyses":         true,
	"api_bind":                        true,
	"runtime_auto_start":              true,
	"chat_history_window":             true,
	"database_dsn":                    true,
	"vector_store_dsn":                true,
}

// Config holds memscreend's recognized configuration surface.
type Config struct {
	RuntimeBaseURL               string
	VisionModel                  string
	EmbeddingModel               string
	ChatModel                    string
	RecordingDefaultDurationSec  int
	RecordingDefaultIntervalSec  float64
	RecordingAudioSource         model.AudioSourceTag
	AutoTrackInputWithRecording  bool
	AnalysisFrameStride          int
	MaxConcurrentAnalyses        int
	APIBind                      string
	// RuntimeAutoStart, when set, lets the supervisor best-effort spawn the
	// model runtime as a scoped subprocess if it is not already reachable
	// at boot (spec §4.13).
	RuntimeAutoStart bool
	// ChatHistoryWindow bounds how many prior messages C11 includes in a
	// chat context window (spec §4.11: "N configurable, default 12").
	ChatHistoryWindow int
	// DatabaseDSN selects store.NewPostgres when set; store.NewMemory
	// otherwise (spec §4.2).
	DatabaseDSN string
	// VectorStoreDSN selects vectorstore.NewQdrant when set;
	// vectorstore.NewMemory otherwise (spec §4.3).
	VectorStoreDSN string
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("runtime_base_url", "http://127.0.0.1:11434")
	v.SetDefault("vision_model", "llava")
	v.SetDefault("embedding_model", "nomic-embed-text")
	v.SetDefault("chat_model", "llama3.1")
	v.SetDefault("recording_default_duration_sec", 0)
	v.SetDefault("recording_default_interval_sec", 1.0)
	v.SetDefault("recording_audio_source", "none")
	v.SetDefault("auto_track_input_with_recording", false)
	v.SetDefault("analysis_frame_stride", 5)
	v.SetDefault("max_concurrent_analyses", 2)
	v.SetDefault("api_bind", "127.0.0.1:8765")
	v.SetDefault("runtime_auto_start", false)
	v.SetDefault("chat_history_window", 12)
	v.SetDefault("database_dsn", "")
	v.SetDefault("vector_store_dsn", "")
	return v
}

// Load merges defaults, the YAML file at configPath (if present), and
// MEMSCREEN_-prefixed environment variables, warning (never failing) about
// unrecognized keys found in the file.
func Load(configPath string, log zerolog.Logger) (*Config, error) {
	v := defaults()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("memscreen")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		}
	} else {
		warnUnrecognizedKeys(v, log)
	}

	cfg := &Config{
		RuntimeBaseURL:              v.GetString("runtime_base_url"),
		VisionModel:                 v.GetString("vision_model"),
		EmbeddingModel:              v.GetString("embedding_model"),
		ChatModel:                   v.GetString("chat_model"),
		RecordingDefaultDurationSec: v.GetInt("recording_default_duration_sec"),
		RecordingDefaultIntervalSec: v.GetFloat64("recording_default_interval_sec"),
		RecordingAudioSource:        normalizeAudioSource(v.GetString("recording_audio_source")),
		AutoTrackInputWithRecording: v.GetBool("auto_track_input_with_recording"),
		AnalysisFrameStride:         v.GetInt("analysis_frame_stride"),
		MaxConcurrentAnalyses:       v.GetInt("max_concurrent_analyses"),
		APIBind:                     v.GetString("api_bind"),
		RuntimeAutoStart:            v.GetBool("runtime_auto_start"),
		ChatHistoryWindow:           v.GetInt("chat_history_window"),
		DatabaseDSN:                 v.GetString("database_dsn"),
		VectorStoreDSN:              v.GetString("vector_store_dsn"),
	}
	return cfg, cfg.validate()
}

// normalizeAudioSource maps spec §4.1's recognized on-disk spelling
// ("system_audio") onto model.AudioSourceTag's internal value ("system"),
// so the recognized config surface matches the enumerated set exactly and
// validate() doesn't need to special-case a second spelling.
func normalizeAudioSource(raw string) model.AudioSourceTag {
	if raw == "system_audio" {
		return model.AudioSystem
	}
	return model.AudioSourceTag(raw)
}

func warnUnrecognizedKeys(v *viper.Viper, log zerolog.Logger) {
	for key := range v.AllSettings() {
		if !recognizedKeys[key] {
			log.Warn().Str("key", key).Msg("ignoring unrecognized config option")
		}
	}
}

func (c *Config) validate() error {
	if c.AnalysisFrameStride < 1 {
		return fmt.Errorf("analysis_frame_stride must be >= 1, got %d", c.AnalysisFrameStride)
	}
	if c.MaxConcurrentAnalyses < 1 {
		return fmt.Errorf("max_concurrent_analyses must be >= 1, got %d", c.MaxConcurrentAnalyses)
	}
	switch c.RecordingAudioSource {
	case model.AudioNone, model.AudioMicrophone, model.AudioSystem, model.AudioMixed:
	default:
		return fmt.Errorf("recording_audio_source %q not recognized", c.RecordingAudioSource)
	}
	return nil
}
