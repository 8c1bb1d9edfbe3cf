package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/capture/audio"
	"github.com/memscreen/memscreend/internal/capture/frames"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/paths"
	"github.com/memscreen/memscreend/internal/store"
)

func TestResolveTarget(t *testing.T) {
	rt := resolveTarget(StartRequest{Mode: model.ModeRegion, DisplayID: "0", Region: model.RegionRect{X: 1, Y: 2, W: 3, H: 4}})
	require.Equal(t, frames.TargetRegion, rt.Kind)
	require.Equal(t, frames.Rect{X: 1, Y: 2, W: 3, H: 4}, rt.Region)

	rt = resolveTarget(StartRequest{Mode: model.ModeWindow, WindowTitle: "Editor"})
	require.Equal(t, frames.TargetWindow, rt.Kind)
	require.Equal(t, "Editor", rt.Window)

	rt = resolveTarget(StartRequest{Mode: model.ModeFullscreen})
	require.Equal(t, frames.TargetFull, rt.Kind)
}

type fakeCapturer struct{}

func (fakeCapturer) ListDisplays() ([]frames.Display, error) {
	return []frames.Display{{Index: 0, DisplayID: "0", Width: 100, Height: 100, IsPrimary: true}}, nil
}
func (fakeCapturer) ListWindows() ([]frames.Window, error) { return nil, nil }
func (fakeCapturer) CaptureDisplay(string) (frames.Frame, error) {
	return frames.Frame{Timestamp: time.Now(), Width: 2, Height: 2, Pix: make([]byte, 16)}, nil
}
func (fakeCapturer) CaptureRegion(string, frames.Rect) (frames.Frame, error) {
	return frames.Frame{Timestamp: time.Now(), Width: 2, Height: 2, Pix: make([]byte, 16)}, nil
}
func (fakeCapturer) WindowBounds(string) (string, frames.Rect, error) { return "0", frames.Rect{}, nil }
func (fakeCapturer) Close() error                                    { return nil }

type fakeAudioBackend struct{}

func (fakeAudioBackend) Diagnose(model.AudioSourceTag) audio.Diagnosis { return audio.Diagnosis{} }
func (fakeAudioBackend) StartCapture(context.Context, model.AudioSourceTag, *audio.Buffer) error {
	return nil
}

func TestStart_RejectsConcurrentStart(t *testing.T) {
	st := store.NewMemory()
	frameSrc := frames.New(fakeCapturer{})
	audioSrc := audio.New(fakeAudioBackend{})
	p := paths.Paths{Root: t.TempDir()}
	o := New(st, frameSrc, audioSrc, nil, p, zerolog.Nop())

	req := StartRequest{Mode: model.ModeFullscreen, IntervalSec: 60, FFmpegPath: "/bin/true"}
	_, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	_, err = o.Start(context.Background(), req)
	require.Error(t, err)

	o.Stop()
}

func TestStart_RegionRejectsUnknownDisplay(t *testing.T) {
	st := store.NewMemory()
	frameSrc := frames.New(fakeCapturer{})
	audioSrc := audio.New(fakeAudioBackend{})
	p := paths.Paths{Root: t.TempDir()}
	o := New(st, frameSrc, audioSrc, nil, p, zerolog.Nop())

	req := StartRequest{
		Mode:        model.ModeRegion,
		DisplayID:   "nonexistent",
		Region:      model.RegionRect{X: 0, Y: 0, W: 100, H: 100},
		IntervalSec: 60,
		FFmpegPath:  "/bin/true",
	}
	_, err := o.Start(context.Background(), req)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.InvalidArgument))
	require.Equal(t, StateIdle, o.Status().State)

	recs, listErr := st.ListRecordings(context.Background(), model.RecordingFilter{}, store.OrderStartTimeDesc, 0)
	require.NoError(t, listErr)
	require.Empty(t, recs)
}

func TestStart_RegionRejectsOutOfBounds(t *testing.T) {
	st := store.NewMemory()
	frameSrc := frames.New(fakeCapturer{})
	audioSrc := audio.New(fakeAudioBackend{})
	p := paths.Paths{Root: t.TempDir()}
	o := New(st, frameSrc, audioSrc, nil, p, zerolog.Nop())

	req := StartRequest{
		Mode:        model.ModeRegion,
		DisplayID:   "0",
		Region:      model.RegionRect{X: 50, Y: 50, W: 100, H: 100},
		IntervalSec: 60,
		FFmpegPath:  "/bin/true",
	}
	_, err := o.Start(context.Background(), req)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.InvalidArgument))

	recs, listErr := st.ListRecordings(context.Background(), model.RecordingFilter{}, store.OrderStartTimeDesc, 0)
	require.NoError(t, listErr)
	require.Empty(t, recs)
}

func TestStart_FailsWithoutEncoder(t *testing.T) {
	st := store.NewMemory()
	frameSrc := frames.New(fakeCapturer{})
	audioSrc := audio.New(fakeAudioBackend{})
	p := paths.Paths{Root: t.TempDir()}
	o := New(st, frameSrc, audioSrc, nil, p, zerolog.Nop())

	_, err := o.Start(context.Background(), StartRequest{Mode: model.ModeFullscreen, IntervalSec: 60})
	require.Error(t, err)
	require.Equal(t, StateIdle, o.Status().State)
}
