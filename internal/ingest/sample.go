package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// sampledFrame is one frame selected for analysis, with its offset into the
// recording and the path of the extracted still.
type sampledFrame struct {
	TOffsetSeconds float64
	ImagePath      string
}

// extractFrames runs the resolved ffmpeg binary over videoPath, selecting
// every stride-th frame plus always the first and last (spec §4.10 step 1).
func extractFrames(ctx context.Context, ffmpegPath, videoPath string, stride int, fps float64, tmpDir string) ([]sampledFrame, error) {
	if stride < 1 {
		stride = 1
	}
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return nil, err
	}

	selectExpr := fmt.Sprintf("not(mod(n\\,%d))", stride)
	strideDir := filepath.Join(tmpDir, "stride")
	if err := os.MkdirAll(strideDir, 0o700); err != nil {
		return nil, err
	}
	strideArgs := []string{
		"-y", "-i", videoPath,
		"-vf", fmt.Sprintf("select='%s'", selectExpr),
		"-vsync", "vfr",
		filepath.Join(strideDir, "frame_%06d.png"),
	}
	if err := exec.CommandContext(ctx, ffmpegPath, strideArgs...).Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg stride extraction: %w", err)
	}

	firstPath := filepath.Join(tmpDir, "first.png")
	if err := exec.CommandContext(ctx, ffmpegPath, "-y", "-i", videoPath, "-vframes", "1", firstPath).Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg first-frame extraction: %w", err)
	}
	lastPath := filepath.Join(tmpDir, "last.png")
	if err := exec.CommandContext(ctx, ffmpegPath, "-y", "-sseof", "-1", "-i", videoPath, "-update", "1", "-q:v", "1", lastPath).Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg last-frame extraction: %w", err)
	}

	entries, err := os.ReadDir(strideDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]sampledFrame, 0, len(names)+2)
	frames = append(frames, sampledFrame{TOffsetSeconds: 0, ImagePath: firstPath})
	for i, name := range names {
		offset := float64(i*stride) / fps
		frames = append(frames, sampledFrame{TOffsetSeconds: offset, ImagePath: filepath.Join(strideDir, name)})
	}
	frames = append(frames, sampledFrame{TOffsetSeconds: -1, ImagePath: lastPath}) // offset fixed up by caller once duration is known

	return frames, nil
}
