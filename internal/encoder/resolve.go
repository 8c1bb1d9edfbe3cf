package encoder

import (
	"os/exec"
	"path/filepath"
	"runtime"
)

// Resolve locates an ffmpeg-compatible binary, preferring a runtime-bundled
// copy under <data-root>/runtime over whatever is on $PATH (spec §4.8).
func Resolve(runtimeDir string) (string, error) {
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}

	bundled := filepath.Join(runtimeDir, name)
	if _, err := exec.LookPath(bundled); err == nil {
		return bundled, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", ErrEncoderUnavailable
	}
	return path, nil
}
