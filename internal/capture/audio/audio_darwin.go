//go:build darwin

package audio

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/memscreen/memscreend/internal/model"
)

// coreAudioBackend probes device presence without a full native capture
// path (spec §4.6's "probes availability" contract for the non-Linux
// backends; only the Linux backend implements real capture).
type coreAudioBackend struct{}

// NewPlatform returns the macOS audio-probing backend.
func NewPlatform() Backend { return &coreAudioBackend{} }

func (b *coreAudioBackend) Diagnose(requested model.AudioSourceTag) Diagnosis {
	_, err := exec.LookPath("system_profiler")
	return Diagnosis{
		PyAudioAvailable:      err == nil,
		MicrophoneAvailable:   err == nil,
		SystemDeviceAvailable: false,
		SystemSignalAvailable: false,
		Message:               "microphone probing only; system-audio capture requires a virtual loopback device",
		RecommendedAction:     "install a loopback driver (e.g. BlackHole) for system audio capture",
	}
}

func (b *coreAudioBackend) StartCapture(ctx context.Context, source model.AudioSourceTag, sink *Buffer) error {
	return fmt.Errorf("native capture unavailable on this platform build")
}
