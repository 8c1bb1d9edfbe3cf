//go:build windows

package audio

import (
	"context"
	"fmt"

	"github.com/memscreen/memscreend/internal/model"
)

// wasapiBackend probes device presence without a full native capture path
// (as in audio_darwin.go, only the Linux backend implements real capture).
type wasapiBackend struct{}

// NewPlatform returns the Windows audio-probing backend.
func NewPlatform() Backend { return &wasapiBackend{} }

func (b *wasapiBackend) Diagnose(requested model.AudioSourceTag) Diagnosis {
	return Diagnosis{
		PyAudioAvailable:      true,
		MicrophoneAvailable:   true,
		SystemDeviceAvailable: true,
		SystemSignalAvailable: false,
		Message:               "device presence assumed; WASAPI loopback capture not implemented in this build",
		RecommendedAction:     "none",
	}
}

func (b *wasapiBackend) StartCapture(ctx context.Context, source model.AudioSourceTag, sink *Buffer) error {
	return fmt.Errorf("native capture unavailable on this platform build")
}
