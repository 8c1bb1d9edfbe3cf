// Package audio implements C6: optional microphone/system-audio capture
// buffered into a WAV file. Either channel may be absent; capture never
// fails a recording solely because audio is unavailable (spec §4.6).
package audio

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/memscreen/memscreend/internal/model"
)

const (
	sampleRate = 44100
	bitDepth   = 16
	numChans   = 1
)

// Diagnosis reports what audio capabilities are available on this machine
// (spec §4.6's diagnose).
type Diagnosis struct {
	PyAudioAvailable      bool
	MicrophoneAvailable   bool
	SystemDeviceAvailable bool
	SystemSignalAvailable bool
	Message               string
	RecommendedAction     string
}

// Backend is the platform probe/capture primitive.
type Backend interface {
	Diagnose(requested model.AudioSourceTag) Diagnosis
	// StartCapture begins writing PCM samples into sink until ctx is
	// cancelled; it never blocks the caller past ctx cancellation.
	StartCapture(ctx context.Context, source model.AudioSourceTag, sink *Buffer) error
}

// Buffer accumulates mono 16-bit PCM samples for one recording.
type Buffer struct {
	mu      sync.Mutex
	samples []int
}

// AppendSamples adds PCM samples captured from the backend.
func (b *Buffer) AppendSamples(samples []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
}

// Duration reports the buffered audio's playback length.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(len(b.samples)) * time.Second / sampleRate
}

// WriteWAV encodes the buffered samples as a mono 16-bit 44.1kHz WAV file at
// path, per spec §4.6's fixed parameters.
func (b *Buffer) WriteWAV(path string) error {
	b.mu.Lock()
	samples := make([]int, len(b.samples))
	copy(samples, b.samples)
	b.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChans, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Source wraps a platform Backend as the contract spec §4.6 names.
type Source struct {
	backend Backend
}

// New wraps a platform Backend.
func New(backend Backend) *Source {
	return &Source{backend: backend}
}

// Diagnose reports availability for the requested source.
func (s *Source) Diagnose(requested model.AudioSourceTag) Diagnosis {
	return s.backend.Diagnose(requested)
}

// Open starts capturing into a fresh Buffer for the requested source. If the
// requested channel(s) are unavailable, the resolved tag reflects what was
// actually captured (possibly model.AudioNone) rather than failing.
func (s *Source) Open(ctx context.Context, requested model.AudioSourceTag) (*Buffer, model.AudioSourceTag, error) {
	diag := s.backend.Diagnose(requested)
	resolved := resolveSource(requested, diag)
	buf := &Buffer{}
	if resolved == model.AudioNone {
		return buf, model.AudioNone, nil
	}
	if err := s.backend.StartCapture(ctx, resolved, buf); err != nil {
		// Per spec: unavailable channels are silently dropped, never fail
		// the overall recording.
		return buf, model.AudioNone, nil
	}
	return buf, resolved, nil
}

func resolveSource(requested model.AudioSourceTag, diag Diagnosis) model.AudioSourceTag {
	switch requested {
	case model.AudioNone, "":
		return model.AudioNone
	case model.AudioMicrophone:
		if diag.MicrophoneAvailable {
			return model.AudioMicrophone
		}
	case model.AudioSystem, "system_audio":
		if diag.SystemDeviceAvailable || diag.SystemSignalAvailable {
			return model.AudioSystem
		}
	case model.AudioMixed, "mixed":
		mic := diag.MicrophoneAvailable
		sys := diag.SystemDeviceAvailable || diag.SystemSignalAvailable
		switch {
		case mic && sys:
			return model.AudioMixed
		case mic:
			return model.AudioMicrophone
		case sys:
			return model.AudioSystem
		}
	}
	return model.AudioNone
}
