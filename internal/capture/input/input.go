// Package input implements C7: an optional, restartable keyboard/mouse event
// stream, down-sampled and batched for persistence.
package input

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/store"
)

const (
	mouseMoveSampleInterval = 50 * time.Millisecond
	flushInterval           = 2 * time.Second
	liveEventBuffer         = 256
)

// RawEvent is what a platform Hook emits before down-sampling.
type RawEvent struct {
	T      time.Time
	Kind   model.InputEventKind
	Key    string
	Button string
	X, Y   int
	DeltaX float64
	DeltaY float64
}

// Hook is the platform-specific observation primitive.
type Hook interface {
	// Start begins emitting RawEvents on the returned channel until Stop is
	// called. The channel is closed by the hook after Stop.
	Start() (<-chan RawEvent, error)
	Stop() error
}

// Tracker drives a Hook through session start/stop/mark-start, down-samples
// mouse moves, and periodically batches observed events into the metadata
// store via InputEventAppendBatch (spec §4.7). The InputEvent vocabulary is
// adapted from breeze's remote/desktop InputEvent/InputHandler pair,
// inverted from "inject input" to "observe input".
type Tracker struct {
	hook  Hook
	store store.Store
	log   zerolog.Logger

	mu              sync.Mutex
	active          bool
	sessionID       string
	currentSession  model.InputSession

	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastMouseSample time.Time
	pending         []model.InputEvent

	live chan model.InputEvent

	eventCount atomic.Int64
}

// New wraps a platform Hook with a metadata store for session bookkeeping.
func New(hook Hook, st store.Store, log zerolog.Logger) *Tracker {
	return &Tracker{
		hook:  hook,
		store: st,
		log:   log.With().Str("component", "input_tracker").Logger(),
		live:  make(chan model.InputEvent, liveEventBuffer),
	}
}

// Start begins a tracking session, recording it in the metadata store. A
// no-op if a session is already active.
func (t *Tracker) Start(ctx context.Context) (model.InputSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return t.currentSession, nil
	}

	sess, err := t.store.InputSessionStart(ctx)
	if err != nil {
		return model.InputSession{}, err
	}

	raw, err := t.hook.Start()
	if err != nil {
		return model.InputSession{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.active = true
	t.sessionID = sess.ID
	t.currentSession = sess
	t.pending = nil
	t.eventCount.Store(0)

	t.wg.Add(2)
	go t.pump(runCtx, raw)
	go t.flushLoop(runCtx)

	return sess, nil
}

func (t *Tracker) pump(ctx context.Context, raw <-chan RawEvent) {
	defer t.wg.Done()
	for {
		select {
		case ev, ok := <-raw:
			if !ok {
				return
			}
			t.ingest(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) ingest(ev RawEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	if ev.Kind == model.InputMouseMove {
		if ev.T.Sub(t.lastMouseSample) < mouseMoveSampleInterval {
			return
		}
		t.lastMouseSample = ev.T
	}
	out := model.InputEvent{
		SessionID: t.sessionID, T: ev.T, Kind: ev.Kind,
		Key: ev.Key, Button: ev.Button,
		X: ev.X, Y: ev.Y, DeltaX: ev.DeltaX, DeltaY: ev.DeltaY,
	}
	t.pending = append(t.pending, out)
	t.eventCount.Add(1)

	select {
	case t.live <- out:
	default: // no subscriber keeping up; drop rather than block capture
	}
}

func (t *Tracker) flushLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.flush(context.Background())
		case <-ctx.Done():
			t.flush(context.Background())
			return
		}
	}
}

func (t *Tracker) flush(ctx context.Context) {
	t.mu.Lock()
	sessionID := t.sessionID
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(batch) == 0 || sessionID == "" {
		return
	}
	if err := t.store.InputEventAppendBatch(ctx, sessionID, batch); err != nil {
		t.log.Error().Err(err).Int("count", len(batch)).Msg("input event batch append failed")
	}
}

// pendingSnapshot returns a copy of the not-yet-flushed buffer, for in-package
// tests that need to observe down-sampling before the flush ticker fires.
func (t *Tracker) pendingSnapshot() []model.InputEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.InputEvent, len(t.pending))
	copy(out, t.pending)
	return out
}

// Stop ends the session, flushing any buffered events first. A no-op if no
// session is active.
func (t *Tracker) Stop(ctx context.Context) (model.InputSession, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return model.InputSession{}, nil
	}
	cancel := t.cancel
	sessionID := t.sessionID
	t.active = false
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
	if err := t.hook.Stop(); err != nil {
		t.log.Warn().Err(err).Msg("input hook stop returned an error")
	}

	return t.store.InputSessionStop(ctx, sessionID)
}

// MarkStart rebinds the current session's start time to now, so the
// recorder can align overlapping recording intervals with an input session
// that was already running (spec §4.7).
func (t *Tracker) MarkStart(ctx context.Context) (model.InputSession, error) {
	t.mu.Lock()
	sessionID := t.sessionID
	active := t.active
	t.mu.Unlock()
	if !active {
		return model.InputSession{}, nil
	}
	return t.store.InputSessionMarkStart(ctx, sessionID)
}

// Active reports whether a session is currently open.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// EventCount reports how many events the current (or most recently closed)
// session has observed, for /process/tracking/status (spec §6).
func (t *Tracker) EventCount() int {
	return int(t.eventCount.Load())
}

// Events returns a channel of down-sampled events for live consumers (e.g.
// the floating indicator). Slow consumers miss events rather than blocking
// capture.
func (t *Tracker) Events() <-chan model.InputEvent {
	return t.live
}
