package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
)

const snippetTruncateLen = 280

// EnsureThread returns threadID unchanged if non-empty, else creates and
// activates a new thread (spec §4.11's Chat takes an optional thread_id).
func (e *Engine) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	th, err := e.store.ChatThreadCreate(ctx, "New conversation")
	if err != nil {
		return "", err
	}
	if _, err := e.store.ChatThreadSetActive(ctx, th.ID); err != nil {
		return "", err
	}
	return th.ID, nil
}

// Chat appends userMessage, builds the context window, and returns the
// completed assistant reply (spec §4.11's non-streaming Chat shape, used by
// POST /chat).
func (e *Engine) Chat(ctx context.Context, threadID, userMessage string) (string, model.ChatMessage, error) {
	threadID, err := e.EnsureThread(ctx, threadID)
	if err != nil {
		return threadID, model.ChatMessage{}, err
	}
	if _, err := e.store.ChatMessageAppend(ctx, threadID, model.RoleUser, userMessage); err != nil {
		return threadID, model.ChatMessage{}, err
	}
	messages, err := e.buildContextWindow(ctx, threadID, userMessage)
	if err != nil {
		return threadID, model.ChatMessage{}, err
	}
	reply, err := e.runtime.Chat(ctx, messages, e.cfg.ChatModel)
	if err != nil {
		return threadID, model.ChatMessage{}, err
	}
	msg, err := e.store.ChatMessageAppend(ctx, threadID, model.RoleAssistant, reply)
	return threadID, msg, err
}

// ChatStream appends userMessage and returns a channel of streamed reply
// chunks, terminated by a Done chunk. The assistant message is appended only
// once Done arrives; cancellation or an upstream error leaves the thread
// without an assistant message, per spec §4.11's determinism note.
func (e *Engine) ChatStream(ctx context.Context, threadID, userMessage string) (string, <-chan modelrt.StreamChunk, error) {
	threadID, err := e.EnsureThread(ctx, threadID)
	if err != nil {
		return threadID, nil, err
	}
	if _, err := e.store.ChatMessageAppend(ctx, threadID, model.RoleUser, userMessage); err != nil {
		return threadID, nil, err
	}
	messages, err := e.buildContextWindow(ctx, threadID, userMessage)
	if err != nil {
		return threadID, nil, err
	}
	upstream, err := e.runtime.ChatStream(ctx, messages, e.cfg.ChatModel)
	if err != nil {
		return threadID, nil, err
	}

	out := make(chan modelrt.StreamChunk, 8)
	go func() {
		defer close(out)
		for chunk := range upstream {
			out <- chunk
			if chunk.Err != nil {
				return
			}
			if chunk.Done {
				if _, err := e.store.ChatMessageAppend(context.Background(), threadID, model.RoleAssistant, chunk.Text); err != nil {
					e.log.Error().Err(err).Str("thread_id", threadID).Msg("failed to append assistant reply")
				}
				return
			}
		}
	}()
	return threadID, out, nil
}

// buildContextWindow assembles system prompt + last N history messages +
// retrieved snippets (spec §4.11's Chat context window).
func (e *Engine) buildContextWindow(ctx context.Context, threadID, userMessage string) ([]model.ChatMessage, error) {
	history, err := e.store.ChatHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(history) > e.cfg.ChatHistoryWindow {
		history = history[len(history)-e.cfg.ChatHistoryWindow:]
	}

	hits, err := e.Retrieve(ctx, userMessage, defaultChatRetrievalTopK, model.RecordingFilter{})
	if err != nil {
		e.log.Warn().Err(err).Msg("retrieval for chat context failed; continuing without snippets")
		hits = nil
	}

	sys := e.cfg.SystemPrompt
	if len(hits) > 0 {
		var b strings.Builder
		b.WriteString("\n\nRelevant screen history:\n")
		for _, h := range hits {
			fmt.Fprintf(&b, "- [%s] %s\n", h.Recording.StartTime.Format("2006-01-02 15:04"), truncate(h.Snippet, snippetTruncateLen))
		}
		sys += b.String()
	}

	messages := make([]model.ChatMessage, 0, len(history)+1)
	messages = append(messages, model.ChatMessage{Role: model.RoleSystem, Content: sys})
	messages = append(messages, history...)
	return messages, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
