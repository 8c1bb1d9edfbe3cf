package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

func TestRecordingCRUDAndCascadeDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	start := time.Now().UTC()
	id, err := s.PutRecording(ctx, model.Recording{
		StartTime: start, EndTime: start.Add(3 * time.Second),
		Mode: model.ModeFullscreen, AudioSource: model.AudioNone,
		AnalysisState: model.AnalysisPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.PutFrameArtifacts(ctx, id, []model.FrameArtifact{
		{TOffsetSeconds: 0, EmbeddingRef: "v1"},
		{TOffsetSeconds: 1.5, EmbeddingRef: "v2"},
	}))

	done := model.AnalysisDone
	require.NoError(t, s.UpdateRecording(ctx, id, model.RecordingPatch{AnalysisState: &done}))

	got, err := s.GetRecording(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.AnalysisDone, got.AnalysisState)

	artifacts, err := s.ListFrameArtifacts(ctx, id)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	require.NoError(t, s.DeleteRecording(ctx, id))
	_, err = s.GetRecording(ctx, id)
	require.True(t, apperr.Is(err, apperr.NotFound))

	artifacts, err = s.ListFrameArtifacts(ctx, id)
	require.NoError(t, err)
	require.Empty(t, artifacts) // invariant 3: cascade removes frame artifacts
}

func TestChatMessageOrdinalsAreContiguous(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	thread, err := s.ChatThreadCreate(ctx, "test thread")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		msg, err := s.ChatMessageAppend(ctx, thread.ID, model.RoleUser, "hello")
		require.NoError(t, err)
		require.Equal(t, i+1, msg.Ordinal)
	}

	history, err := s.ChatHistory(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, m := range history {
		require.Equal(t, i+1, m.Ordinal)
	}
}

func TestInputSessionStartStopNoops(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	sess, err := s.InputSessionStart(ctx)
	require.NoError(t, err)

	again, err := s.InputSessionStart(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.ID, again.ID) // starting while active is a no-op

	stopped, err := s.InputSessionStop(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, stopped.EndTime.IsZero())

	stoppedAgain, err := s.InputSessionStop(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, stopped.EndTime, stoppedAgain.EndTime) // stopping twice is a no-op

	require.NoError(t, s.InputEventAppendBatch(ctx, sess.ID, []model.InputEvent{
		{Kind: model.InputKeyPress, T: time.Now()},
	}))
	_, events, err := s.InputSessionGet(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
