// Package orchestrator implements C9: the Recording Orchestrator state
// machine (IDLE -> PREPARING -> RECORDING -> STOPPING -> FINALIZING -> IDLE)
// driving C5/C6/C7 capture and C8 encoding for one recording at a time.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/capture/audio"
	"github.com/memscreen/memscreend/internal/capture/frames"
	"github.com/memscreen/memscreend/internal/capture/input"
	"github.com/memscreen/memscreend/internal/encoder"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/paths"
	"github.com/memscreen/memscreend/internal/store"
)

// State is one node of the orchestrator's state machine.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateFinalizing State = "finalizing"
)

// Snapshot is an immutable point-in-time view of the orchestrator, swapped
// atomically so Status() never observes a partial update (spec §4.9).
type Snapshot struct {
	State       State
	RecordingID string
	StartedAt   time.Time
	Reason      string // set when State==StateStopping due to target_gone
	Err         string // last failure surfaced to IDLE, if any
}

// StartRequest carries everything needed to open PREPARING.
type StartRequest struct {
	Mode        model.RecordingMode
	DisplayID   string
	Region      model.RegionRect
	WindowTitle string
	DurationSec int
	IntervalSec float64
	AudioSource model.AudioSourceTag
	AutoTrack   bool
	FFmpegPath  string
}

// Orchestrator drives exactly one active recording at a time.
type Orchestrator struct {
	store        store.Store
	frameSrc     *frames.Source
	audioSrc     *audio.Source
	inputTracker *input.Tracker
	paths        paths.Paths
	log          zerolog.Logger

	snapshot atomic.Pointer[Snapshot]
	stopCh   chan struct{} // non-nil while a recording is active; closed by Stop

	// OnFinalized is invoked with a recording's id once FINALIZING has
	// persisted it successfully, enqueuing the ingest job spec.md §4.9's
	// state diagram names ("FINALIZING --persist_ok--> IDLE (emit ingest
	// job)"). Nil is a valid no-op (e.g. in orchestrator-only tests).
	OnFinalized func(recordingID string)
}

// New builds an Orchestrator over the given components.
func New(st store.Store, frameSrc *frames.Source, audioSrc *audio.Source, inputTracker *input.Tracker, p paths.Paths, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{store: st, frameSrc: frameSrc, audioSrc: audioSrc, inputTracker: inputTracker, paths: p, log: log}
	o.snapshot.Store(&Snapshot{State: StateIdle})
	return o
}

// Status returns a consistent, non-partial snapshot (spec §4.9).
func (o *Orchestrator) Status() Snapshot {
	return *o.snapshot.Load()
}

// Start begins PREPARING and, on success, RECORDING; a concurrent start
// while any recording is active fails with apperr.Busy.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (model.Recording, error) {
	cur := o.snapshot.Load()
	if cur.State != StateIdle {
		return model.Recording{}, apperr.Newf(apperr.Busy, "a recording is already %s", cur.State)
	}

	if req.Mode == model.ModeRegion {
		if err := o.validateRegionTarget(req); err != nil {
			return model.Recording{}, err
		}
	}

	interval := time.Duration(req.IntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}

	recording := model.Recording{
		StartTime:       time.Now().UTC(),
		Mode:            req.Mode,
		TargetDisplayID: req.DisplayID,
		TargetWindowTitle: req.WindowTitle,
		AudioSource:     req.AudioSource,
		AnalysisState:   model.AnalysisPending,
	}
	if req.Mode == model.ModeRegion {
		r := req.Region
		recording.RegionRect = &r
	}

	id, err := o.store.PutRecording(ctx, recording)
	if err != nil {
		return model.Recording{}, apperr.New(apperr.StorageUnavailable, err)
	}
	recording.ID = id

	o.snapshot.Store(&Snapshot{State: StatePreparing, RecordingID: id, StartedAt: recording.StartTime})

	target := resolveTarget(req)
	stream, err := o.frameSrc.Open(target, interval)
	if err != nil {
		o.failPrepare(ctx, id, err)
		return model.Recording{}, apperr.New(apperr.TargetGone, err)
	}

	var audioBuf *audio.Buffer
	resolvedAudio := model.AudioNone
	if req.AudioSource != model.AudioNone && req.AudioSource != "" {
		audioBuf, resolvedAudio, err = o.audioSrc.Open(ctx, req.AudioSource)
		if err != nil {
			stream.Close()
			o.failPrepare(ctx, id, err)
			return model.Recording{}, apperr.New(apperr.Internal, err)
		}
	}
	recording.AudioSource = resolvedAudio

	if req.AutoTrack && o.inputTracker != nil {
		if _, err := o.inputTracker.Start(ctx); err != nil {
			o.log.Warn().Err(err).Msg("input tracking failed to start; recording proceeds without it")
		} else {
			_, _ = o.inputTracker.MarkStart(ctx)
		}
	}

	if req.FFmpegPath == "" {
		stream.Close()
		o.failPrepare(ctx, id, ErrNoEncoder)
		return model.Recording{}, ErrNoEncoder
	}

	o.stopCh = make(chan struct{})
	o.snapshot.Store(&Snapshot{State: StateRecording, RecordingID: id, StartedAt: recording.StartTime})

	go o.run(id, req, interval, stream, audioBuf, o.stopCh)

	return recording, nil
}

// validateRegionTarget enforces spec §3's Recording invariant that a
// region_rect lies inside its target display's bounds, and that the target
// display itself exists, before any Recording row is created (spec §8
// scenario 2: a region request against a nonexistent display must fail fast
// with invalid_argument/400, not surface later as target_gone/404).
func (o *Orchestrator) validateRegionTarget(req StartRequest) error {
	displays, err := o.frameSrc.ListDisplays()
	if err != nil {
		return apperr.New(apperr.TargetGone, err)
	}

	var target *frames.Display
	for i := range displays {
		if req.DisplayID != "" && displays[i].DisplayID == req.DisplayID {
			target = &displays[i]
			break
		}
		if req.DisplayID == "" && displays[i].IsPrimary {
			target = &displays[i]
		}
	}
	if target == nil {
		return apperr.Newf(apperr.InvalidArgument, "display %q not found", req.DisplayID)
	}
	if !req.Region.Inside(target.Width, target.Height) {
		return apperr.Newf(apperr.InvalidArgument, "region %+v lies outside display %q bounds (%dx%d)",
			req.Region, target.DisplayID, target.Width, target.Height)
	}
	return nil
}

func (o *Orchestrator) failPrepare(ctx context.Context, id string, err error) {
	failed := model.AnalysisFailed
	_ = o.store.UpdateRecording(ctx, id, model.RecordingPatch{AnalysisState: &failed})
	o.snapshot.Store(&Snapshot{State: StateIdle, Err: err.Error()})
}

// Stop signals the active recording to stop at the next tick (≤ interval),
// then finalize. A no-op if idle.
func (o *Orchestrator) Stop() {
	cur := o.snapshot.Load()
	if cur.State != StateRecording {
		return
	}
	select {
	case <-o.stopCh:
	default:
		close(o.stopCh)
	}
}

func (o *Orchestrator) run(id string, req StartRequest, interval time.Duration, stream *frames.FrameStream, audioBuf *audio.Buffer, stopCh chan struct{}) {
	ctx := context.Background()
	encCh := make(chan frames.Frame, 1)
	outputPath := o.paths.VideoPath(id)
	keyframeDir := outputPath + ".keyframes"

	encResult := make(chan encodeOutcome, 1)
	go func() {
		res, err := encoder.Encode(ctx, encCh, encoder.Options{
			FFmpegPath:   req.FFmpegPath,
			RequestedFPS: 1.0 / interval.Seconds(),
			Interval:     interval,
			OutputPath:   outputPath,
			KeyframeDir:  keyframeDir,
			// Audio is muxed in a second pass via encoder.MuxAudio once the
			// live buffer is finalized; see below.
		})
		encResult <- encodeOutcome{res, err}
	}()

	reason := ""
	deadline := time.Time{}
	if req.DurationSec > 0 {
		deadline = time.Now().Add(time.Duration(req.DurationSec) * time.Second)
	}

loop:
	for {
		select {
		case <-stopCh:
			break loop
		default:
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break loop
		}

		fctx, cancel := context.WithTimeout(ctx, interval+5*time.Second)
		frame, closeReason, err := stream.Next(fctx)
		cancel()
		if err != nil {
			continue // deadline tick with no frame yet; loop back to check stopCh
		}
		if closeReason == frames.ReasonTargetGone {
			reason = "target_gone"
			break loop
		}
		if closeReason == frames.ReasonClosed {
			break loop
		}

		select {
		case encCh <- frame:
		case <-stopCh:
			break loop
		}
	}

	o.snapshot.Store(&Snapshot{State: StateStopping, RecordingID: id, Reason: reason})

	stream.Close()
	close(encCh)

	var audioPath string
	if audioBuf != nil && audioBuf.Duration() > 0 {
		audioPath = o.paths.AudioPath(id)
		if err := audioBuf.WriteWAV(audioPath); err != nil {
			o.log.Warn().Err(err).Msg("failed to write audio buffer; continuing without audio track")
			audioPath = ""
		}
	}

	if req.AutoTrack && o.inputTracker != nil {
		if _, err := o.inputTracker.Stop(ctx); err != nil {
			o.log.Warn().Err(err).Msg("input tracker stop returned an error")
		}
	}

	outcome := <-encResult
	if outcome.err != nil {
		failed := model.AnalysisFailed
		_ = o.store.UpdateRecording(ctx, id, model.RecordingPatch{AnalysisState: &failed})
		o.snapshot.Store(&Snapshot{State: StateIdle, RecordingID: id, Err: outcome.err.Error()})
		return
	}

	o.snapshot.Store(&Snapshot{State: StateFinalizing, RecordingID: id})

	if audioPath != "" {
		if err := encoder.MuxAudio(ctx, req.FFmpegPath, outputPath, audioPath); err != nil {
			o.log.Warn().Err(err).Msg("audio mux failed; recording persisted without an audio track")
		}
	}

	fps := outcome.res.FPS
	frameCount := outcome.res.FrameCount
	duration := outcome.res.Duration.Seconds()
	filePath := outputPath
	_ = o.store.UpdateRecording(ctx, id, model.RecordingPatch{
		FPS: &fps, FrameCount: &frameCount, DurationSeconds: &duration, FilePath: &filePath,
	})

	o.snapshot.Store(&Snapshot{State: StateIdle, RecordingID: id})

	if o.OnFinalized != nil {
		o.OnFinalized(id)
	}
}

type encodeOutcome struct {
	res encoder.Result
	err error
}

func resolveTarget(req StartRequest) frames.Target {
	switch req.Mode {
	case model.ModeRegion:
		return frames.Target{Kind: frames.TargetRegion, DisplayID: req.DisplayID, Region: frames.Rect{X: req.Region.X, Y: req.Region.Y, W: req.Region.W, H: req.Region.H}}
	case model.ModeWindow:
		return frames.Target{Kind: frames.TargetWindow, Window: req.WindowTitle}
	case model.ModeFullscreenSingle:
		return frames.Target{Kind: frames.TargetDisplay, DisplayID: req.DisplayID}
	default:
		return frames.Target{Kind: frames.TargetFull}
	}
}

// ErrNoEncoder is surfaced when PREPARING cannot locate an ffmpeg-compatible
// binary; the recording is marked failed rather than left dangling.
var ErrNoEncoder = apperr.Newf(apperr.EncoderUnavailable, "no ffmpeg-compatible binary resolved before recording start")
