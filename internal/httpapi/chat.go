package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/memscreen/memscreend/internal/apperr"
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Message == "" {
		badRequest(w, fmt.Errorf("message is required"))
		return
	}

	_, reply, err := s.deps.Query.Chat(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reply": reply.Content})
}

// handleChatStream streams the reply as SSE {chunk} events, finished by
// {done: true, full} (spec §6).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Message == "" {
		badRequest(w, fmt.Errorf("message is required"))
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		respondError(w, apperr.Newf(apperr.Internal, "streaming unsupported"))
		return
	}

	_, ch, err := s.deps.Query.ChatStream(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	for chunk := range ch {
		if chunk.Err != nil {
			b, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
			fmt.Fprintf(w, "data: %s\n\n", b)
			fl.Flush()
			return
		}
		if chunk.Done {
			b, _ := json.Marshal(map[string]any{"done": true, "full": chunk.Text})
			fmt.Fprintf(w, "data: %s\n\n", b)
			fl.Flush()
			return
		}
		b, _ := json.Marshal(map[string]string{"chunk": chunk.Text})
		fmt.Fprintf(w, "data: %s\n\n", b)
		fl.Flush()
	}
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	names, errMsg := s.deps.Runtime.ListInstalled(r.Context())
	if errMsg != "" {
		respondJSON(w, http.StatusOK, map[string]any{"models": []string{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": names})
}

func (s *Server) handleChatModelGet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"model": s.deps.Settings.ActiveModel()})
}

type chatModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleChatModelPut(w http.ResponseWriter, r *http.Request) {
	var req chatModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Model == "" {
		badRequest(w, fmt.Errorf("model is required"))
		return
	}
	if err := s.deps.Settings.SetActiveChatModel(req.Model); err != nil {
		respondError(w, apperr.New(apperr.StorageUnavailable, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"model": s.deps.Settings.ActiveModel()})
}

type chatMessageJSON struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		badRequest(w, fmt.Errorf("thread_id is required"))
		return
	}
	history, err := s.deps.Store.ChatHistory(r.Context(), threadID)
	if err != nil {
		respondError(w, err)
		return
	}
	messages := make([]chatMessageJSON, len(history))
	for i, m := range history {
		messages[i] = chatMessageJSON{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleChatThreadsList(w http.ResponseWriter, r *http.Request) {
	threads, err := s.deps.Store.ChatThreadList(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

type chatThreadCreateRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleChatThreadsCreate(w http.ResponseWriter, r *http.Request) {
	var req chatThreadCreateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	title := req.Title
	if title == "" {
		title = "New conversation"
	}
	th, err := s.deps.Store.ChatThreadCreate(r.Context(), title)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, th)
}

type chatThreadSetActiveRequest struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleChatThreadsSetActive(w http.ResponseWriter, r *http.Request) {
	var req chatThreadSetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ThreadID == "" {
		badRequest(w, fmt.Errorf("thread_id is required"))
		return
	}
	th, err := s.deps.Store.ChatThreadSetActive(r.Context(), req.ThreadID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, th)
}
