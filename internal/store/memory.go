package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

// memoryStore is an in-process Store, used for tests and as the degraded
// fallback when no database DSN is configured.
type memoryStore struct {
	mu sync.Mutex

	recordings map[string]model.Recording
	artifacts  map[string][]model.FrameArtifact // keyed by recording id

	threads       map[string]model.ChatThread
	threadOrder   []string
	messages      map[string][]model.ChatMessage // keyed by thread id
	activeThread  string

	sessions     map[string]model.InputSession
	sessionOrder []string
	events       map[string][]model.InputEvent // keyed by session id
}

// NewMemory returns an in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		recordings: make(map[string]model.Recording),
		artifacts:  make(map[string][]model.FrameArtifact),
		threads:    make(map[string]model.ChatThread),
		messages:   make(map[string][]model.ChatMessage),
		sessions:   make(map[string]model.InputSession),
		events:     make(map[string][]model.InputEvent),
	}
}

func (m *memoryStore) PutRecording(_ context.Context, r model.Recording) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.recordings[r.ID] = r
	return r.ID, nil
}

func (m *memoryStore) UpdateRecording(_ context.Context, id string, patch model.RecordingPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "recording %s not found", id)
	}
	if patch.AnalysisState != nil {
		r.AnalysisState = *patch.AnalysisState
	}
	if patch.ContentSummary != nil {
		r.ContentSummary = *patch.ContentSummary
	}
	if patch.ContentTags != nil {
		r.ContentTags = patch.ContentTags
	}
	if patch.UserTags != nil {
		r.UserTags = patch.UserTags
	}
	if patch.AppName != nil {
		r.AppName = *patch.AppName
	}
	if patch.FPS != nil {
		r.FPS = *patch.FPS
	}
	if patch.FrameCount != nil {
		r.FrameCount = *patch.FrameCount
	}
	if patch.DurationSeconds != nil {
		r.DurationSeconds = *patch.DurationSeconds
	}
	if patch.FilePath != nil {
		r.FilePath = *patch.FilePath
	}
	m.recordings[id] = r
	return nil
}

func (m *memoryStore) ListRecordings(_ context.Context, filter model.RecordingFilter, order Order, limit int) ([]model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Recording
	for _, r := range m.recordings {
		if !matchesFilter(r, filter) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if order == OrderStartTimeAsc {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(r model.Recording, f model.RecordingFilter) bool {
	if f.Since != nil && r.StartTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.StartTime.After(*f.Until) {
		return false
	}
	if f.Mode != nil && r.Mode != *f.Mode {
		return false
	}
	if f.AnalysisState != nil && r.AnalysisState != *f.AnalysisState {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(r.UserTags, tag) && !containsString(r.ContentTags, tag) {
			return false
		}
	}
	if f.Query != "" && !recordingMatchesQuery(r, f.Query) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func recordingMatchesQuery(r model.Recording, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(r.ContentSummary), q) {
		return true
	}
	for _, t := range r.ContentTags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func (m *memoryStore) GetRecording(_ context.Context, id string) (model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[id]
	if !ok {
		return model.Recording{}, apperr.Newf(apperr.NotFound, "recording %s not found", id)
	}
	return r, nil
}

func (m *memoryStore) DeleteRecording(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[id]; !ok {
		return apperr.Newf(apperr.NotFound, "recording %s not found", id)
	}
	delete(m.recordings, id)
	delete(m.artifacts, id)
	return nil
}

func (m *memoryStore) PutFrameArtifacts(_ context.Context, recordingID string, artifacts []model.FrameArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[recordingID]; !ok {
		return apperr.Newf(apperr.NotFound, "recording %s not found", recordingID)
	}
	stamped := make([]model.FrameArtifact, len(artifacts))
	for i, a := range artifacts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		a.RecordingID = recordingID
		stamped[i] = a
	}
	m.artifacts[recordingID] = append(m.artifacts[recordingID], stamped...)
	return nil
}

func (m *memoryStore) ListFrameArtifacts(_ context.Context, recordingID string) ([]model.FrameArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FrameArtifact, len(m.artifacts[recordingID]))
	copy(out, m.artifacts[recordingID])
	return out, nil
}

func (m *memoryStore) DeleteFrameArtifacts(_ context.Context, recordingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, recordingID)
	return nil
}

func (m *memoryStore) SearchRecordings(_ context.Context, query string, limit int) ([]model.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Recording
	for _, r := range m.recordings {
		if recordingMatchesQuery(r, query) || strings.Contains(strings.ToLower(r.AppName), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ChatThreadCreate(_ context.Context, title string) (model.ChatThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	t := model.ChatThread{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	m.threads[t.ID] = t
	m.threadOrder = append(m.threadOrder, t.ID)
	return t, nil
}

func (m *memoryStore) ChatThreadList(_ context.Context) ([]model.ChatThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatThread, 0, len(m.threadOrder))
	for _, id := range m.threadOrder {
		out = append(out, m.threads[id])
	}
	return out, nil
}

func (m *memoryStore) ChatThreadSetActive(_ context.Context, id string) (model.ChatThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return model.ChatThread{}, apperr.Newf(apperr.NotFound, "thread %s not found", id)
	}
	for k, other := range m.threads {
		if other.IsActive {
			other.IsActive = false
			m.threads[k] = other
		}
	}
	t.IsActive = true
	m.threads[id] = t
	return t, nil
}

func (m *memoryStore) ChatMessageAppend(_ context.Context, threadID string, role model.ChatRole, content string) (model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[threadID]; !ok {
		return model.ChatMessage{}, apperr.Newf(apperr.NotFound, "thread %s not found", threadID)
	}
	existing := m.messages[threadID]
	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Ordinal:   len(existing) + 1,
	}
	m.messages[threadID] = append(existing, msg)
	th := m.threads[threadID]
	th.UpdatedAt = msg.CreatedAt
	m.threads[threadID] = th
	return msg, nil
}

func (m *memoryStore) ChatHistory(_ context.Context, threadID string) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatMessage, len(m.messages[threadID]))
	copy(out, m.messages[threadID])
	return out, nil
}

func (m *memoryStore) InputSessionStart(_ context.Context) (model.InputSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EndTime.IsZero() {
			return s, nil // starting an already-active session is a no-op
		}
	}
	now := time.Now().UTC()
	s := model.InputSession{ID: uuid.NewString(), StartTime: now}
	m.sessions[s.ID] = s
	m.sessionOrder = append(m.sessionOrder, s.ID)
	return s, nil
}

func (m *memoryStore) activeSessionLocked() (model.InputSession, bool) {
	for _, s := range m.sessions {
		if s.EndTime.IsZero() {
			return s, true
		}
	}
	return model.InputSession{}, false
}

func (m *memoryStore) InputSessionStop(_ context.Context, id string) (model.InputSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.InputSession{}, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	if !s.EndTime.IsZero() {
		return s, nil // stopping an inactive session is a no-op
	}
	s.EndTime = time.Now().UTC()
	m.sessions[id] = s
	return s, nil
}

func (m *memoryStore) InputSessionMarkStart(_ context.Context, id string) (model.InputSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.InputSession{}, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	s.StartTime = time.Now().UTC()
	m.sessions[id] = s
	return s, nil
}

func (m *memoryStore) InputSessionList(_ context.Context) ([]model.InputSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.InputSession, 0, len(m.sessionOrder))
	for _, id := range m.sessionOrder {
		out = append(out, m.sessions[id])
	}
	return out, nil
}

func (m *memoryStore) InputSessionGet(_ context.Context, id string) (model.InputSession, []model.InputEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.InputSession{}, nil, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	out := make([]model.InputEvent, len(m.events[id]))
	copy(out, m.events[id])
	return s, out, nil
}

func (m *memoryStore) InputSessionDelete(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return 0, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	count := len(m.events[id])
	delete(m.sessions, id)
	delete(m.events, id)
	for i, sid := range m.sessionOrder {
		if sid == id {
			m.sessionOrder = append(m.sessionOrder[:i], m.sessionOrder[i+1:]...)
			break
		}
	}
	return count, nil
}

func (m *memoryStore) InputEventAppendBatch(_ context.Context, sessionID string, events []model.InputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found", sessionID)
	}
	stamped := make([]model.InputEvent, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.SessionID = sessionID
		stamped[i] = e
		s.EventCount++
		switch e.Kind {
		case model.InputKeyPress:
			s.KeystrokeCount++
		case model.InputMouseDown:
			s.ClickCount++
		}
		if e.T.After(s.EndTime) {
			s.EndTime = e.T
		}
	}
	m.events[sessionID] = append(m.events[sessionID], stamped...)
	m.sessions[sessionID] = s
	return nil
}

func (m *memoryStore) InputSessionImport(_ context.Context, start, end time.Time, events []model.InputEvent) (model.InputSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := model.InputSession{ID: uuid.NewString(), StartTime: start, EndTime: end}
	stamped := make([]model.InputEvent, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.SessionID = s.ID
		stamped[i] = e
		s.EventCount++
		switch e.Kind {
		case model.InputKeyPress:
			s.KeystrokeCount++
		case model.InputMouseDown:
			s.ClickCount++
		}
	}
	m.sessions[s.ID] = s
	m.sessionOrder = append(m.sessionOrder, s.ID)
	m.events[s.ID] = stamped
	return s, nil
}

// Ping always succeeds: the in-memory store has no external dependency to
// lose reachability to.
func (m *memoryStore) Ping(_ context.Context) error { return nil }

func (m *memoryStore) Close() {}
