package encoder

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildArgs_IncludesAudioInputOnlyWhenWAVPathSet(t *testing.T) {
	noAudio := buildArgs(Options{RequestedFPS: 2, OutputPath: "out.mp4"}, 100, 50)
	require.NotContains(t, noAudio, "-c:a")

	withAudio := buildArgs(Options{RequestedFPS: 2, OutputPath: "out.mp4", WAVPath: "a.wav"}, 100, 50)
	require.Contains(t, withAudio, "a.wav")
	require.Contains(t, withAudio, "-c:a")
}

func TestLimitedWriter_TruncatesAtMax(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{buf: &buf, max: 4}
	n, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n) // reports the full length written by the caller's perspective
	require.Equal(t, "hell", buf.String())
}

func TestResolve_PrefersBundledBinary(t *testing.T) {
	dir := t.TempDir()
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}
	bundled := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(bundled, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	path, err := Resolve(dir)
	require.NoError(t, err)
	require.Equal(t, bundled, path)
}

func TestResolve_FailsWhenNothingFound(t *testing.T) {
	dir := t.TempDir()
	empty := t.TempDir()
	t.Setenv("PATH", empty)
	_, err := Resolve(dir)
	require.Error(t, err)
}
