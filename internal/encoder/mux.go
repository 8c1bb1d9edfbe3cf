package encoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/memscreen/memscreend/internal/apperr"
)

// MuxAudio adds an already-finalized WAV track to a video-only file produced
// by Encode, used by the live-capture path where the audio buffer is only
// complete once the recording stops (so it cannot be passed to Encode's
// streaming -i pipe up front). The video stream is copied, never
// re-encoded; audio shorter than the video is padded with silence (apad) and
// audio longer than the video is cut at the video's end (-shortest). No
// duration tolerance is checked here and no warning is reported; the only
// result is an error if ffmpeg fails.
func MuxAudio(ctx context.Context, ffmpegPath, videoPath, wavPath string) error {
	tmp := videoPath + ".withaudio.mp4"

	args := []string{
		"-y",
		"-i", videoPath,
		"-i", wavPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-af", "apad",
		"-shortest",
		tmp,
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxCapturedOutput}
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return apperr.Newf(apperr.EncoderUnavailable, "mux audio: %v (stderr: %s)", err, stderr.String())
	}
	return os.Rename(tmp, videoPath)
}
