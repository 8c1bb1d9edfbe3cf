package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8765", cfg.APIBind)
	require.Equal(t, 2, cfg.MaxConcurrentAnalyses)
	require.Equal(t, 5, cfg.AnalysisFrameStride)
}

func TestLoadOverridesAndWarnsUnrecognized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_bind: "0.0.0.0:9000"
chat_model: "qwen2.5"
totally_unknown_option: true
`), 0o644))

	var logs bytes.Buffer
	cfg, err := Load(path, zerolog.New(&logs))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.APIBind)
	require.Equal(t, "qwen2.5", cfg.ChatModel)
	require.Contains(t, logs.String(), "totally_unknown_option")
}

func TestLoadNormalizesAudioSourceSpelling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recording_audio_source: \"system_audio\"\n"), 0o644))

	cfg, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, model.AudioSystem, cfg.RecordingAudioSource)
}

func TestLoadRejectsInvalidStride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis_frame_stride: 0\n"), 0o644))

	_, err := Load(path, zerolog.Nop())
	require.Error(t, err)
}

func TestRuntimeSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flutter_settings.json")

	rs, err := LoadRuntimeSettings(path, &Config{ChatModel: "llama3.1"})
	require.NoError(t, err)
	require.Equal(t, "llama3.1", rs.ActiveModel())

	require.NoError(t, rs.SetActiveChatModel("qwen2.5"))
	require.NoError(t, rs.SetAutoTrackInput(true))

	reloaded, err := LoadRuntimeSettings(path, &Config{ChatModel: "llama3.1"})
	require.NoError(t, err)
	require.Equal(t, "qwen2.5", reloaded.ActiveModel())
	require.True(t, reloaded.AutoTrackInput())
}
