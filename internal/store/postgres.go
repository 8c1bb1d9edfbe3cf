package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, runs the idempotent migration sequence, and
// returns a Store. A failed migration refuses to open the store, surfacing
// storage_unavailable, per spec §4.2.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, fmt.Errorf("parse dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, fmt.Errorf("connect: %w", err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperr.New(apperr.StorageUnavailable, fmt.Errorf("ping: %w", err))
	}
	s := &postgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, apperr.New(apperr.StorageUnavailable, fmt.Errorf("migrate: %w", err))
	}
	return s, nil
}

// migrate runs every numbered migration inside one transaction. Each
// statement is idempotent (CREATE TABLE IF NOT EXISTS / ADD COLUMN IF NOT
// EXISTS), matching the teacher's chat-store migration idiom.
func (s *postgresStore) migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id UUID PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			frame_count INTEGER NOT NULL DEFAULT 0,
			fps DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			file_path TEXT NOT NULL DEFAULT '',
			audio_source TEXT NOT NULL DEFAULT 'none',
			mode TEXT NOT NULL,
			target_display_id TEXT,
			target_window_title TEXT,
			region_rect JSONB,
			app_name TEXT NOT NULL DEFAULT '',
			content_summary TEXT NOT NULL DEFAULT '',
			content_tags TEXT[] NOT NULL DEFAULT '{}',
			user_tags TEXT[] NOT NULL DEFAULT '{}',
			analysis_state TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE INDEX IF NOT EXISTS recordings_start_time_idx ON recordings(start_time DESC)`,
		`ALTER TABLE recordings ADD COLUMN IF NOT EXISTS analysis_state TEXT NOT NULL DEFAULT 'pending'`,

		`CREATE TABLE IF NOT EXISTS frame_artifacts (
			id UUID PRIMARY KEY,
			recording_id UUID NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			t_offset_seconds DOUBLE PRECISION NOT NULL,
			ocr_text TEXT NOT NULL DEFAULT '',
			vision_description TEXT NOT NULL DEFAULT '',
			embedding_ref TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS frame_artifacts_recording_idx ON frame_artifacts(recording_id)`,

		`CREATE TABLE IF NOT EXISTS chat_threads (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			is_active BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			thread_id UUID NOT NULL REFERENCES chat_threads(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ordinal INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS chat_messages_thread_ordinal_idx ON chat_messages(thread_id, ordinal)`,

		`CREATE TABLE IF NOT EXISTS input_sessions (
			id UUID PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			event_count INTEGER NOT NULL DEFAULT 0,
			keystroke_count INTEGER NOT NULL DEFAULT 0,
			click_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS input_events (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES input_sessions(id) ON DELETE CASCADE,
			t TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL DEFAULT '',
			button TEXT NOT NULL DEFAULT '',
			x INTEGER NOT NULL DEFAULT 0,
			y INTEGER NOT NULL DEFAULT 0,
			delta_x DOUBLE PRECISION NOT NULL DEFAULT 0,
			delta_y DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS input_events_session_idx ON input_events(session_id, t)`,
	}
	for i, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) PutRecording(ctx context.Context, r model.Recording) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var regionJSON []byte
	if r.RegionRect != nil {
		regionJSON, _ = json.Marshal(r.RegionRect)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recordings (id, start_time, end_time, frame_count, fps, duration_seconds, file_path,
			audio_source, mode, target_display_id, target_window_title, region_rect, app_name,
			content_summary, content_tags, user_tags, analysis_state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.StartTime, r.EndTime, r.FrameCount, r.FPS, r.DurationSeconds, r.FilePath,
		string(r.AudioSource), string(r.Mode), nullableString(r.TargetDisplayID), nullableString(r.TargetWindowTitle),
		regionJSON, r.AppName, r.ContentSummary, r.ContentTags, r.UserTags, string(r.AnalysisState))
	if err != nil {
		return "", apperr.New(apperr.StorageUnavailable, err)
	}
	return r.ID, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *postgresStore) UpdateRecording(ctx context.Context, id string, patch model.RecordingPatch) error {
	sets := []string{}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.AnalysisState != nil {
		add("analysis_state", string(*patch.AnalysisState))
	}
	if patch.ContentSummary != nil {
		add("content_summary", *patch.ContentSummary)
	}
	if patch.ContentTags != nil {
		add("content_tags", patch.ContentTags)
	}
	if patch.UserTags != nil {
		add("user_tags", patch.UserTags)
	}
	if patch.AppName != nil {
		add("app_name", *patch.AppName)
	}
	if patch.FPS != nil {
		add("fps", *patch.FPS)
	}
	if patch.FrameCount != nil {
		add("frame_count", *patch.FrameCount)
	}
	if patch.DurationSeconds != nil {
		add("duration_seconds", *patch.DurationSeconds)
	}
	if patch.FilePath != nil {
		add("file_path", *patch.FilePath)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE recordings SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "recording %s not found", id)
	}
	return nil
}

func (s *postgresStore) ListRecordings(ctx context.Context, filter model.RecordingFilter, order Order, limit int) ([]model.Recording, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Since != nil {
		add("start_time >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("start_time <= $%d", *filter.Until)
	}
	if filter.Mode != nil {
		add("mode = $%d", string(*filter.Mode))
	}
	if filter.AnalysisState != nil {
		add("analysis_state = $%d", string(*filter.AnalysisState))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		n := len(args)
		where = append(where, fmt.Sprintf("(content_tags && $%d OR user_tags && $%d)", n, n))
	}
	if filter.Query != "" {
		add("(content_summary ILIKE '%%' || $%d || '%%')", filter.Query)
	}
	orderClause := "start_time DESC"
	if order == OrderStartTimeAsc {
		orderClause = "start_time ASC"
	}
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf(" LIMIT $%d", len(args))
	}
	query := fmt.Sprintf("SELECT %s FROM recordings WHERE %s ORDER BY %s%s",
		recordingColumns, strings.Join(where, " AND "), orderClause, limitClause)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()

	var out []model.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const recordingColumns = `id, start_time, end_time, frame_count, fps, duration_seconds, file_path,
	audio_source, mode, target_display_id, target_window_title, region_rect, app_name,
	content_summary, content_tags, user_tags, analysis_state`

func scanRecording(row pgx.Row) (model.Recording, error) {
	var r model.Recording
	var targetDisplayID, targetWindowTitle *string
	var regionJSON []byte
	var audioSource, mode, analysisState string
	if err := row.Scan(&r.ID, &r.StartTime, &r.EndTime, &r.FrameCount, &r.FPS, &r.DurationSeconds, &r.FilePath,
		&audioSource, &mode, &targetDisplayID, &targetWindowTitle, &regionJSON, &r.AppName,
		&r.ContentSummary, &r.ContentTags, &r.UserTags, &analysisState); err != nil {
		return model.Recording{}, err
	}
	r.AudioSource = model.AudioSourceTag(audioSource)
	r.Mode = model.RecordingMode(mode)
	r.AnalysisState = model.AnalysisState(analysisState)
	if targetDisplayID != nil {
		r.TargetDisplayID = *targetDisplayID
	}
	if targetWindowTitle != nil {
		r.TargetWindowTitle = *targetWindowTitle
	}
	if len(regionJSON) > 0 {
		var rect model.RegionRect
		if err := json.Unmarshal(regionJSON, &rect); err == nil {
			r.RegionRect = &rect
		}
	}
	return r, nil
}

func (s *postgresStore) GetRecording(ctx context.Context, id string) (model.Recording, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM recordings WHERE id = $1", recordingColumns), id)
	r, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Recording{}, apperr.Newf(apperr.NotFound, "recording %s not found", id)
		}
		return model.Recording{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return r, nil
}

func (s *postgresStore) DeleteRecording(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "recording %s not found", id)
	}
	return nil // ON DELETE CASCADE removes frame_artifacts
}

func (s *postgresStore) PutFrameArtifacts(ctx context.Context, recordingID string, artifacts []model.FrameArtifact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	defer tx.Rollback(ctx)
	for _, a := range artifacts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO frame_artifacts (id, recording_id, t_offset_seconds, ocr_text, vision_description, embedding_ref)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			a.ID, recordingID, a.TOffsetSeconds, a.OCRText, a.VisionDescription, a.EmbeddingRef); err != nil {
			return apperr.New(apperr.StorageUnavailable, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	return nil
}

func (s *postgresStore) ListFrameArtifacts(ctx context.Context, recordingID string) ([]model.FrameArtifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recording_id, t_offset_seconds, ocr_text, vision_description, embedding_ref, created_at
		FROM frame_artifacts WHERE recording_id = $1 ORDER BY t_offset_seconds ASC`, recordingID)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var out []model.FrameArtifact
	for rows.Next() {
		var a model.FrameArtifact
		if err := rows.Scan(&a.ID, &a.RecordingID, &a.TOffsetSeconds, &a.OCRText, &a.VisionDescription, &a.EmbeddingRef, &a.CreatedAt); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *postgresStore) DeleteFrameArtifacts(ctx context.Context, recordingID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM frame_artifacts WHERE recording_id = $1`, recordingID)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	return nil
}

func (s *postgresStore) SearchRecordings(ctx context.Context, query string, limit int) ([]model.Recording, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM recordings
		WHERE content_summary ILIKE '%%' || $1 || '%%'
		   OR EXISTS (SELECT 1 FROM unnest(content_tags) t WHERE t ILIKE '%%' || $1 || '%%')
		   OR EXISTS (
		       SELECT 1 FROM frame_artifacts fa
		       WHERE fa.recording_id = recordings.id AND fa.ocr_text ILIKE '%%' || $1 || '%%'
		   )
		ORDER BY start_time DESC LIMIT $2`, recordingColumns), query, limit)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var out []model.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) ChatThreadCreate(ctx context.Context, title string) (model.ChatThread, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chat_threads (id, title) VALUES ($1, $2)
		RETURNING id, title, created_at, updated_at, is_active`, id, title)
	return scanThread(row)
}

func scanThread(row pgx.Row) (model.ChatThread, error) {
	var t model.ChatThread
	if err := row.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt, &t.IsActive); err != nil {
		return model.ChatThread{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return t, nil
}

func (s *postgresStore) ChatThreadList(ctx context.Context) ([]model.ChatThread, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, created_at, updated_at, is_active FROM chat_threads ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var out []model.ChatThread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresStore) ChatThreadSetActive(ctx context.Context, id string) (model.ChatThread, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ChatThread{}, apperr.New(apperr.StorageUnavailable, err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `UPDATE chat_threads SET is_active = false WHERE is_active = true`); err != nil {
		return model.ChatThread{}, apperr.New(apperr.StorageUnavailable, err)
	}
	row := tx.QueryRow(ctx, `
		UPDATE chat_threads SET is_active = true WHERE id = $1
		RETURNING id, title, created_at, updated_at, is_active`, id)
	t, err := scanThread(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ChatThread{}, apperr.Newf(apperr.NotFound, "thread %s not found", id)
		}
		return model.ChatThread{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ChatThread{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return t, nil
}

func (s *postgresStore) ChatMessageAppend(ctx context.Context, threadID string, role model.ChatRole, content string) (model.ChatMessage, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		WITH next_ord AS (
			SELECT COALESCE(MAX(ordinal), 0) + 1 AS ordinal FROM chat_messages WHERE thread_id = $1
		)
		INSERT INTO chat_messages (id, thread_id, role, content, ordinal)
		SELECT $2, $1, $3, $4, ordinal FROM next_ord
		RETURNING id, thread_id, role, content, created_at, ordinal`, threadID, id, string(role), content)
	var m model.ChatMessage
	var roleStr string
	if err := row.Scan(&m.ID, &m.ThreadID, &roleStr, &m.Content, &m.CreatedAt, &m.Ordinal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ChatMessage{}, apperr.Newf(apperr.NotFound, "thread %s not found", threadID)
		}
		return model.ChatMessage{}, apperr.New(apperr.StorageUnavailable, err)
	}
	m.Role = model.ChatRole(roleStr)
	if _, err := s.pool.Exec(ctx, `UPDATE chat_threads SET updated_at = now() WHERE id = $1`, threadID); err != nil {
		return model.ChatMessage{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return m, nil
}

func (s *postgresStore) ChatHistory(ctx context.Context, threadID string) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, role, content, created_at, ordinal
		FROM chat_messages WHERE thread_id = $1 ORDER BY ordinal ASC`, threadID)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var roleStr string
		if err := rows.Scan(&m.ID, &m.ThreadID, &roleStr, &m.Content, &m.CreatedAt, &m.Ordinal); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		m.Role = model.ChatRole(roleStr)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *postgresStore) InputSessionStart(ctx context.Context) (model.InputSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count
		FROM input_sessions WHERE end_time IS NULL LIMIT 1`)
	if s, err := scanSession(row); err == nil {
		return s, nil // already-active session: start is a no-op
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}

	id := uuid.NewString()
	row = s.pool.QueryRow(ctx, `
		INSERT INTO input_sessions (id, start_time) VALUES ($1, now())
		RETURNING id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count`, id)
	return scanSession(row)
}

func scanSession(row pgx.Row) (model.InputSession, error) {
	var s model.InputSession
	if err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.EventCount, &s.KeystrokeCount, &s.ClickCount); err != nil {
		return model.InputSession{}, err
	}
	if s.EndTime.Unix() == 0 {
		s.EndTime = time.Time{}
	}
	return s, nil
}

func (s *postgresStore) InputSessionStop(ctx context.Context, id string) (model.InputSession, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE input_sessions SET end_time = now() WHERE id = $1 AND end_time IS NULL
		RETURNING id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count`, id)
	if sess, err := scanSession(row); err == nil {
		return sess, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	// already stopped (or missing) — fetch current state; stop is a no-op.
	row = s.pool.QueryRow(ctx, `
		SELECT id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count
		FROM input_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.InputSession{}, apperr.Newf(apperr.NotFound, "session %s not found", id)
		}
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return sess, nil
}

func (s *postgresStore) InputSessionMarkStart(ctx context.Context, id string) (model.InputSession, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE input_sessions SET start_time = now() WHERE id = $1
		RETURNING id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.InputSession{}, apperr.Newf(apperr.NotFound, "session %s not found", id)
		}
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return sess, nil
}

func (s *postgresStore) InputSessionList(ctx context.Context) ([]model.InputSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count
		FROM input_sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var out []model.InputSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *postgresStore) InputSessionGet(ctx context.Context, id string) (model.InputSession, []model.InputEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count
		FROM input_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.InputSession{}, nil, apperr.Newf(apperr.NotFound, "session %s not found", id)
		}
		return model.InputSession{}, nil, apperr.New(apperr.StorageUnavailable, err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, t, kind, key, button, x, y, delta_x, delta_y
		FROM input_events WHERE session_id = $1 ORDER BY t ASC`, id)
	if err != nil {
		return model.InputSession{}, nil, apperr.New(apperr.StorageUnavailable, err)
	}
	defer rows.Close()
	var events []model.InputEvent
	for rows.Next() {
		var e model.InputEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.T, &kind, &e.Key, &e.Button, &e.X, &e.Y, &e.DeltaX, &e.DeltaY); err != nil {
			return model.InputSession{}, nil, apperr.New(apperr.Internal, err)
		}
		e.Kind = model.InputEventKind(kind)
		events = append(events, e)
	}
	return sess, events, rows.Err()
}

func (s *postgresStore) InputSessionDelete(ctx context.Context, id string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM input_events WHERE session_id = $1`, id).Scan(&count); err != nil {
		return 0, apperr.New(apperr.StorageUnavailable, err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM input_sessions WHERE id = $1`, id)
	if err != nil {
		return 0, apperr.New(apperr.StorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	return count, nil
}

func (s *postgresStore) InputEventAppendBatch(ctx context.Context, sessionID string, events []model.InputEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	keystrokes, clicks := 0, 0
	var maxT time.Time
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO input_events (id, session_id, t, kind, key, button, x, y, delta_x, delta_y)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, sessionID, e.T, string(e.Kind), e.Key, e.Button, e.X, e.Y, e.DeltaX, e.DeltaY); err != nil {
			return apperr.New(apperr.StorageUnavailable, err)
		}
		switch e.Kind {
		case model.InputKeyPress:
			keystrokes++
		case model.InputMouseDown:
			clicks++
		}
		if e.T.After(maxT) {
			maxT = e.T
		}
	}
	tag, err := tx.Exec(ctx, `
		UPDATE input_sessions
		SET event_count = event_count + $2, keystroke_count = keystroke_count + $3, click_count = click_count + $4,
		    end_time = GREATEST(coalesce(end_time, $5), $5)
		WHERE id = $1`, sessionID, len(events), keystrokes, clicks, maxT)
	if err != nil {
		return apperr.New(apperr.StorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "session %s not found", sessionID)
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) InputSessionImport(ctx context.Context, start, end time.Time, events []model.InputEvent) (model.InputSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	id := uuid.NewString()
	keystrokes, clicks := 0, 0
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO input_events (id, session_id, t, kind, key, button, x, y, delta_x, delta_y)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, id, e.T, string(e.Kind), e.Key, e.Button, e.X, e.Y, e.DeltaX, e.DeltaY); err != nil {
			return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
		}
		switch e.Kind {
		case model.InputKeyPress:
			keystrokes++
		case model.InputMouseDown:
			clicks++
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO input_sessions (id, start_time, end_time, event_count, keystroke_count, click_count)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, start_time, coalesce(end_time, 'epoch'), event_count, keystroke_count, click_count`,
		id, start, end, len(events), keystrokes, clicks)
	sess, err := scanSession(row)
	if err != nil {
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.InputSession{}, apperr.New(apperr.StorageUnavailable, err)
	}
	return sess, nil
}

// Ping reports whether the pool can still reach Postgres, for /health.
func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() {
	s.pool.Close()
}
