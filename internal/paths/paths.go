// Package paths resolves memscreend's per-user data root and the
// deterministic subpaths every other component writes under.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirMode = 0o700

// Paths is the resolved set of on-disk locations under a data root.
type Paths struct {
	Root    string
	Videos  string
	Audio   string
	DB      string
	Vectors string
	Logs    string
	Runtime string
}

// Resolve computes Paths rooted at override, or at "<home>/.memscreen" when
// override is empty, creating every subdirectory if absent.
func Resolve(override string) (Paths, error) {
	root := override
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, ".memscreen")
	}

	p := Paths{
		Root:    root,
		Videos:  filepath.Join(root, "videos"),
		Audio:   filepath.Join(root, "audio"),
		DB:      filepath.Join(root, "db"),
		Vectors: filepath.Join(root, "db", "vectors"),
		Logs:    filepath.Join(root, "logs"),
		Runtime: filepath.Join(root, "runtime"),
	}

	for _, dir := range []string{p.Root, p.Videos, p.Audio, p.DB, p.Vectors, p.Logs, p.Runtime} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return Paths{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return p, nil
}

// VideoPath returns the playable file path for a recording id.
func (p Paths) VideoPath(recordingID string) string {
	return filepath.Join(p.Videos, recordingID+".mp4")
}

// AudioPath returns the raw WAV path for a recording id.
func (p Paths) AudioPath(recordingID string) string {
	return filepath.Join(p.Audio, recordingID+".wav")
}

// MetadataDBPath returns the relational store file path.
func (p Paths) MetadataDBPath() string {
	return filepath.Join(p.DB, "metadata.db")
}

// SettingsPath returns the client-preference file path.
func (p Paths) SettingsPath() string {
	return filepath.Join(p.Root, "flutter_settings.json")
}

// ConfigPath returns the main configuration file path.
func (p Paths) ConfigPath() string {
	return filepath.Join(p.Root, "config.yaml")
}
