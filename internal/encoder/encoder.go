// Package encoder implements C8: muxing a live frame stream and an optional
// WAV buffer into a single playable file via a bundled ffmpeg-compatible
// binary. The subprocess invocation is grounded on the teacher's
// internal/tools/cli ExecutorImpl.Run idiom (context timeout, captured
// stdout/stderr, OTel instrumentation) adapted to a streaming stdin pipe
// instead of a one-shot command.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/capture/frames"
)

var (
	tracer       = otel.Tracer("memscreend/encoder")
	meter        = otel.Meter("memscreend/encoder")
	encodedCount metric.Int64Counter
)

func init() {
	encodedCount, _ = meter.Int64Counter("memscreend.encoder.runs",
		metric.WithDescription("ffmpeg encode invocations by outcome"))
}

const (
	maxCapturedOutput = 16 * 1024
	keyframeEvery     = 10 // write one diagnostic PNG every N delivered frames
)

// Options configures one Encode call.
type Options struct {
	FFmpegPath   string
	RequestedFPS float64
	Interval     time.Duration // sample interval, used for gap-duplication
	WAVPath      string        // empty: no audio track
	OutputPath   string
	KeyframeDir  string // temp dir for post-mortem keyframes; removed on success
}

// Result reports what was actually encoded, independent of what was
// requested (spec §4.8's effective-fps rule).
type Result struct {
	FPS          float64
	FrameCount   int
	Duration     time.Duration
	AudioMuxed   bool
	AudioWarning string
}

// Encode consumes frameCh until it is closed (end-of-stream, per the
// channel-closure idiom replacing cyclic orchestrator/encoder references)
// and produces a muxed file at opts.OutputPath.
func Encode(ctx context.Context, frameCh <-chan frames.Frame, opts Options) (Result, error) {
	if opts.FFmpegPath == "" {
		return Result{}, ErrEncoderUnavailable
	}

	first, ok := <-frameCh
	if !ok {
		return Result{}, apperr.Newf(apperr.InvalidArgument, "no frames delivered to encode")
	}

	if opts.KeyframeDir != "" {
		_ = os.MkdirAll(opts.KeyframeDir, 0o700)
	}

	args := buildArgs(opts, first.Width, first.Height)
	cmd := exec.CommandContext(ctx, opts.FFmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, apperr.New(apperr.EncoderUnavailable, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxCapturedOutput}

	ctx, span := tracer.Start(ctx, "encoder.encode")
	defer span.End()
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return Result{}, apperr.New(apperr.EncoderUnavailable, err)
	}

	frameCount := 1
	gapThreshold := 2 * opts.Interval
	lastTS := first.Timestamp
	writeErr := writeFrame(stdin, first, opts.KeyframeDir, 0)

	for f := range frameCh {
		if writeErr != nil {
			continue // drain the channel so the orchestrator's close doesn't block
		}
		if opts.Interval > 0 && f.Timestamp.Sub(lastTS) > gapThreshold {
			// Duplicate the last frame to preserve timing across the gap
			// (spec §4.8: missing frames beyond 2x interval hold the
			// previous image instead of letting playback skip ahead).
			writeErr = writeRaw(stdin, first.Pix)
			frameCount++
		}
		writeErr = writeFrame(stdin, f, opts.KeyframeDir, frameCount)
		frameCount++
		lastTS = f.Timestamp
		first = f // keep "last written" pixels current for future gap-fills
	}

	stdin.Close()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if writeErr != nil || waitErr != nil {
		encodedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "fail")))
		msg := stderr.String()
		if writeErr != nil {
			return Result{}, apperr.Newf(apperr.EncoderUnavailable, "write frames to ffmpeg: %v (stderr: %s)", writeErr, msg)
		}
		return Result{}, apperr.Newf(apperr.EncoderUnavailable, "ffmpeg exited with error: %v (stderr: %s)", waitErr, msg)
	}

	result := Result{FPS: opts.RequestedFPS, FrameCount: frameCount, Duration: elapsed}

	if probed, err := Probe(opts.OutputPath); err == nil {
		result.Duration = probed.Duration
		result.FrameCount = probed.SampleCount
		if probed.Duration > 0 {
			delivered := float64(frameCount) / probed.Duration.Seconds()
			if delivered < result.FPS {
				result.FPS = delivered
			}
		}
	}

	if opts.WAVPath != "" {
		result.AudioMuxed, result.AudioWarning = muxAudioNote(opts.WAVPath, result.Duration)
	}

	if opts.KeyframeDir != "" {
		_ = os.RemoveAll(opts.KeyframeDir)
	}

	encodedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	return result, nil
}

func buildArgs(opts Options, w, h int) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", fmt.Sprintf("%.3f", opts.RequestedFPS),
		"-i", "pipe:0",
	}
	if opts.WAVPath != "" {
		args = append(args, "-i", opts.WAVPath)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
	if opts.WAVPath != "" {
		args = append(args, "-c:a", "aac")
	}
	args = append(args, opts.OutputPath)
	return args
}

func writeFrame(w io.Writer, f frames.Frame, keyframeDir string, index int) error {
	if keyframeDir != "" && index%keyframeEvery == 0 {
		writeKeyframePNG(keyframeDir, f, index)
	}
	return writeRaw(w, f.Pix)
}

func writeRaw(w io.Writer, pix []byte) error {
	_, err := w.Write(pix)
	return err
}

func writeKeyframePNG(dir string, f frames.Frame, index int) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", index))
	out, err := os.Create(path)
	if err != nil {
		return
	}
	defer out.Close()
	_ = png.Encode(out, img)
}

const audioSyncTolerance = 250 * time.Millisecond

// muxAudioNote reports whether the audio track ffmpeg already muxed (as a
// second -i input) falls within spec §4.8's ±250ms tolerance of
// videoDuration. buildArgs does not pad, trim or stretch the audio track, so
// it keeps its own length in the output; this only decides whether the
// difference is within tolerance or deserves a warning on the Recording.
func muxAudioNote(wavPath string, videoDuration time.Duration) (muxed bool, warning string) {
	f, err := os.Open(wavPath)
	if err != nil {
		return false, ""
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	audioDuration, err := dec.Duration()
	if err != nil {
		return false, ""
	}

	delta := audioDuration - videoDuration
	if delta < 0 {
		delta = -delta
	}
	if delta > audioSyncTolerance {
		return true, fmt.Sprintf("audio duration %s differs from video duration %s by more than %s; audio track kept at its own length",
			audioDuration.Round(time.Millisecond), videoDuration.Round(time.Millisecond), audioSyncTolerance)
	}
	return true, ""
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() < w.max {
		room := w.max - w.buf.Len()
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
