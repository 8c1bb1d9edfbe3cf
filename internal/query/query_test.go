package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
	"github.com/memscreen/memscreend/internal/store"
	"github.com/memscreen/memscreend/internal/vectorstore"
)

func testRuntime(t *testing.T, handler http.HandlerFunc) *modelrt.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := modelrt.New(srv.URL, 8, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func fakeRuntimeHandler(reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0, 0}}})
		case "/api/chat":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"content": reply},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestRetrieve_FusesVectorAndKeywordHitsByRRF(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	vs := vectorstore.NewMemory()
	runtime := testRuntime(t, fakeRuntimeHandler(""))

	now := time.Now().UTC()
	idVectorOnly, err := st.PutRecording(ctx, model.Recording{StartTime: now.Add(-time.Hour), ContentSummary: "vector hit"})
	require.NoError(t, err)
	idBoth, err := st.PutRecording(ctx, model.Recording{StartTime: now, ContentSummary: "editor session", ContentTags: []string{"editor"}})
	require.NoError(t, err)

	require.NoError(t, vs.EnsureCollection(ctx, vectorstore.CollectionName("nomic-embed-text"), 3))
	require.NoError(t, vs.Upsert(ctx, vectorstore.CollectionName("nomic-embed-text"), []model.VectorRecord{
		{ID: idBoth + "-0.000", Vector: []float32{1, 0, 0}, RecordingID: idBoth, Source: model.VectorSourceCombined},
		{ID: idVectorOnly + "-0.000", Vector: []float32{0.9, 0.1, 0}, RecordingID: idVectorOnly, Source: model.VectorSourceCombined},
	}))
	require.NoError(t, st.PutFrameArtifacts(ctx, idBoth, []model.FrameArtifact{
		{ID: idBoth + "-0.000", OCRText: "ocr text", VisionDescription: "an editor window", EmbeddingRef: idBoth + "-0.000"},
	}))

	eng := New(st, vs, runtime, Config{EmbeddingModel: "nomic-embed-text", ChatModel: "llama3.1"}, zerolog.Nop())

	hits, err := eng.Retrieve(ctx, "editor", 5, model.RecordingFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, idBoth, hits[0].Recording.ID, "hit present in both vector and keyword results should rank first")
}

func TestChat_AppendsUserAndAssistantMessagesInOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	vs := vectorstore.NewMemory()
	runtime := testRuntime(t, fakeRuntimeHandler("hello there"))

	eng := New(st, vs, runtime, Config{EmbeddingModel: "nomic-embed-text", ChatModel: "llama3.1"}, zerolog.Nop())

	threadID, reply, err := eng.Chat(ctx, "", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", reply.Content)
	require.Equal(t, model.RoleAssistant, reply.Role)

	history, err := st.ChatHistory(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, model.RoleUser, history[0].Role)
	require.Equal(t, 1, history[0].Ordinal)
	require.Equal(t, model.RoleAssistant, history[1].Role)
	require.Equal(t, 2, history[1].Ordinal)
}

func TestChatStream_CancellationLeavesNoAssistantMessage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	vs := vectorstore.NewMemory()

	reached := make(chan struct{})
	runtime := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0, 0}}})
		case "/api/chat":
			close(reached)
			<-r.Context().Done() // hang until the client aborts the request
		}
	})

	eng := New(st, vs, runtime, Config{EmbeddingModel: "nomic-embed-text", ChatModel: "llama3.1"}, zerolog.Nop())

	cctx, cancel := context.WithCancel(ctx)
	var threadID string
	var ch <-chan modelrt.StreamChunk
	var chatErr error
	done := make(chan struct{})
	go func() {
		threadID, ch, chatErr = eng.ChatStream(cctx, "", "hi")
		close(done)
	}()

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the fake runtime")
	}
	cancel()
	<-done

	if chatErr == nil {
		for range ch {
			// drain until the channel closes
		}
	}

	history, err := st.ChatHistory(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 1, "only the user message should be present after cancellation")
}
