package input

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/store"
)

type fakeHook struct {
	ch      chan RawEvent
	stopped bool
}

func newFakeHook() *fakeHook { return &fakeHook{ch: make(chan RawEvent, 16)} }

func (h *fakeHook) Start() (<-chan RawEvent, error) { return h.ch, nil }
func (h *fakeHook) Stop() error {
	h.stopped = true
	close(h.ch)
	return nil
}

func TestTracker_DownsamplesMouseMoves(t *testing.T) {
	hook := newFakeHook()
	st := store.NewMemory()
	tr := New(hook, st, zerolog.Nop())

	ctx := context.Background()
	_, err := tr.Start(ctx)
	require.NoError(t, err)

	base := time.Now()
	hook.ch <- RawEvent{T: base, Kind: model.InputMouseMove, X: 1, Y: 1}
	hook.ch <- RawEvent{T: base.Add(10 * time.Millisecond), Kind: model.InputMouseMove, X: 2, Y: 2}
	hook.ch <- RawEvent{T: base.Add(60 * time.Millisecond), Kind: model.InputMouseMove, X: 3, Y: 3}
	hook.ch <- RawEvent{T: base.Add(70 * time.Millisecond), Kind: model.InputKeyPress, Key: "a"}

	require.Eventually(t, func() bool {
		return len(tr.pendingSnapshot()) == 3
	}, time.Second, time.Millisecond)

	sess, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.True(t, hook.stopped)

	_, events, err := st.InputSessionGet(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, model.InputMouseMove, events[0].Kind)
	require.Equal(t, model.InputMouseMove, events[1].Kind)
	require.Equal(t, model.InputKeyPress, events[2].Kind)
}

func TestTracker_StartIsNoopWhenAlreadyActive(t *testing.T) {
	hook := newFakeHook()
	st := store.NewMemory()
	tr := New(hook, st, zerolog.Nop())

	ctx := context.Background()
	first, err := tr.Start(ctx)
	require.NoError(t, err)
	second, err := tr.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = tr.Stop(ctx)
	require.NoError(t, err)
}

func TestTracker_StopIsNoopWhenInactive(t *testing.T) {
	hook := newFakeHook()
	st := store.NewMemory()
	tr := New(hook, st, zerolog.Nop())

	sess, err := tr.Stop(context.Background())
	require.NoError(t, err)
	require.Empty(t, sess.ID)
}
