//go:build linux

package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"os/exec"

	"github.com/memscreen/memscreend/internal/model"
)

type alsaBackend struct{}

// NewPlatform returns the Linux ALSA/PulseAudio-probing backend.
func NewPlatform() Backend { return &alsaBackend{} }

func (b *alsaBackend) Diagnose(requested model.AudioSourceTag) Diagnosis {
	_, micErr := exec.LookPath("arecord")
	_, sysErr := exec.LookPath("parec")
	cardsPresent := fileExists("/proc/asound/cards")

	d := Diagnosis{
		PyAudioAvailable:      micErr == nil,
		MicrophoneAvailable:   micErr == nil && cardsPresent,
		SystemDeviceAvailable: sysErr == nil,
		SystemSignalAvailable: sysErr == nil,
	}
	switch {
	case !cardsPresent:
		d.Message = "no ALSA sound cards detected"
		d.RecommendedAction = "connect an input device or enable a virtual card"
	case requested == model.AudioMicrophone && !d.MicrophoneAvailable:
		d.Message = "arecord not found"
		d.RecommendedAction = "install alsa-utils"
	case requested == model.AudioSystem && !d.SystemDeviceAvailable:
		d.Message = "parec not found"
		d.RecommendedAction = "install pulseaudio-utils"
	default:
		d.Message = "ready"
	}
	return d
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StartCapture shells out to arecord/parec (mirroring C8's bundled-tool
// subprocess idiom) and streams raw PCM into sink until ctx is cancelled.
func (b *alsaBackend) StartCapture(ctx context.Context, source model.AudioSourceTag, sink *Buffer) error {
	bin := "arecord"
	args := []string{"-f", "S16_LE", "-r", "44100", "-c", "1", "-t", "raw"}
	if source == model.AudioSystem {
		bin = "parec"
		args = []string{"--format=s16le", "--rate=44100", "--channels=1"}
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		defer cmd.Wait()
		reader := bufio.NewReaderSize(stdout, 4096)
		buf := make([]byte, 4096)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := reader.Read(buf)
			if n > 0 {
				sink.AppendSamples(decodePCM16LE(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func decodePCM16LE(raw []byte) []int {
	out := make([]int, len(raw)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2])))
	}
	return out
}
