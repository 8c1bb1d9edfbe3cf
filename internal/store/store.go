// Package store implements C2: the relational store for recordings, frame
// artifacts, chat threads/messages, and input sessions/events.
package store

import (
	"context"
	"time"

	"github.com/memscreen/memscreend/internal/model"
)

// Order selects list_recordings ordering. start_time desc is the default.
type Order int

const (
	OrderStartTimeDesc Order = iota
	OrderStartTimeAsc
)

// Store is the metadata store contract spec §4.2 names. Implementations
// (Postgres, memory) guarantee single-writer serializability: all public
// operations are serializable relative to each other.
type Store interface {
	PutRecording(ctx context.Context, r model.Recording) (string, error)
	UpdateRecording(ctx context.Context, id string, patch model.RecordingPatch) error
	ListRecordings(ctx context.Context, filter model.RecordingFilter, order Order, limit int) ([]model.Recording, error)
	GetRecording(ctx context.Context, id string) (model.Recording, error)
	DeleteRecording(ctx context.Context, id string) error

	PutFrameArtifacts(ctx context.Context, recordingID string, artifacts []model.FrameArtifact) error
	ListFrameArtifacts(ctx context.Context, recordingID string) ([]model.FrameArtifact, error)
	DeleteFrameArtifacts(ctx context.Context, recordingID string) error

	// SearchRecordings performs the keyword half of C11's hybrid retrieval
	// over ocr_text/content_summary/content_tags, newest start_time first.
	SearchRecordings(ctx context.Context, query string, limit int) ([]model.Recording, error)

	ChatThreadCreate(ctx context.Context, title string) (model.ChatThread, error)
	ChatThreadList(ctx context.Context) ([]model.ChatThread, error)
	ChatThreadSetActive(ctx context.Context, id string) (model.ChatThread, error)
	ChatMessageAppend(ctx context.Context, threadID string, role model.ChatRole, content string) (model.ChatMessage, error)
	ChatHistory(ctx context.Context, threadID string) ([]model.ChatMessage, error)

	InputSessionStart(ctx context.Context) (model.InputSession, error)
	InputSessionStop(ctx context.Context, id string) (model.InputSession, error)
	InputSessionMarkStart(ctx context.Context, id string) (model.InputSession, error)
	InputSessionList(ctx context.Context) ([]model.InputSession, error)
	InputSessionGet(ctx context.Context, id string) (model.InputSession, []model.InputEvent, error)
	InputSessionDelete(ctx context.Context, id string) (int, error)
	InputEventAppendBatch(ctx context.Context, sessionID string, events []model.InputEvent) error

	// InputSessionImport creates a complete session from client-supplied
	// events and bounds in one call, for POST /process/sessions (spec §6),
	// which hands over an already-closed session rather than driving one
	// through Start/Stop.
	InputSessionImport(ctx context.Context, start, end time.Time, events []model.InputEvent) (model.InputSession, error)

	// Ping reports whether the store is reachable and accepting reads, for
	// /health (spec §6).
	Ping(ctx context.Context) error

	Close()
}
