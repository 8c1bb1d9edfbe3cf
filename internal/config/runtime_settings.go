package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RuntimeSettings holds the small subset of configuration that is mutable
// for the process lifetime (spec §4.1) and persisted to the client
// preference file (spec §6's flutter_settings.json).
type RuntimeSettings struct {
	mu   sync.Mutex
	path string

	ActiveChatModel             string `json:"active_chat_model"`
	AutoTrackInputWithRecording bool   `json:"auto_track_input_with_recording"`
}

// LoadRuntimeSettings reads settingsPath if present, else returns defaults
// seeded from cfg.
func LoadRuntimeSettings(settingsPath string, cfg *Config) (*RuntimeSettings, error) {
	rs := &RuntimeSettings{
		path:                         settingsPath,
		ActiveChatModel:              cfg.ChatModel,
		AutoTrackInputWithRecording: cfg.AutoTrackInputWithRecording,
	}
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return rs, nil
		}
		return nil, fmt.Errorf("read runtime settings: %w", err)
	}
	var onDisk struct {
		ActiveChatModel             string `json:"active_chat_model"`
		AutoTrackInputWithRecording bool   `json:"auto_track_input_with_recording"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parse runtime settings: %w", err)
	}
	if onDisk.ActiveChatModel != "" {
		rs.ActiveChatModel = onDisk.ActiveChatModel
	}
	rs.AutoTrackInputWithRecording = onDisk.AutoTrackInputWithRecording
	return rs, nil
}

// SetActiveChatModel updates and persists the active chat model.
func (rs *RuntimeSettings) SetActiveChatModel(model string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.ActiveChatModel = model
	return rs.saveLocked()
}

// ActiveModel returns the currently selected chat model.
func (rs *RuntimeSettings) ActiveModel() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.ActiveChatModel
}

// SetAutoTrackInput updates and persists the auto-track-input flag.
func (rs *RuntimeSettings) SetAutoTrackInput(enabled bool) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.AutoTrackInputWithRecording = enabled
	return rs.saveLocked()
}

// AutoTrackInput reports whether input tracking should start automatically
// with a recording.
func (rs *RuntimeSettings) AutoTrackInput() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.AutoTrackInputWithRecording
}

// saveLocked writes the settings file atomically via write-temp-then-rename.
// Callers must hold rs.mu.
func (rs *RuntimeSettings) saveLocked() error {
	data, err := json.MarshalIndent(struct {
		ActiveChatModel             string `json:"active_chat_model"`
		AutoTrackInputWithRecording bool   `json:"auto_track_input_with_recording"`
	}{rs.ActiveChatModel, rs.AutoTrackInputWithRecording}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runtime settings: %w", err)
	}

	dir := filepath.Dir(rs.path)
	tmp, err := os.CreateTemp(dir, ".flutter_settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmpPath, rs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp settings file: %w", err)
	}
	return nil
}
