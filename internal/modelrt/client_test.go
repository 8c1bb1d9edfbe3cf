package modelrt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/model"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(url, 8, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestEmbed_MemoizesByModelAndText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	v1, err := c.Embed(context.Background(), "nomic-embed-text", "hello world")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "nomic-embed-text", "hello world")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, 1, calls, "second call should hit the LRU, not the network")
}

func TestEmbed_DifferentModelsNotMemoizedTogether(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{9}}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), "model-a", "same text")
	require.NoError(t, err)
	key1 := cacheKey("model-a", "same text")
	key2 := cacheKey("model-b", "same text")
	require.NotEqual(t, key1, key2)
}

func TestCatalog_UnreachableRuntimeReturnsEmptyAndError(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1") // nothing listens here
	entries, errStr := c.Catalog(context.Background(), []model.ModelCatalogEntry{{Name: "llama3.1"}})
	require.Empty(t, entries)
	require.NotEmpty(t, errStr)
}

func TestCatalog_MarksInstalledModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.1"}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	entries, errStr := c.Catalog(context.Background(), []model.ModelCatalogEntry{
		{Name: "llama3.1", Purpose: model.PurposeChat, Required: true},
		{Name: "llava", Purpose: model.PurposeVision},
	})
	require.Empty(t, errStr)
	require.True(t, entries[0].Installed)
	require.False(t, entries[1].Installed)
}

func TestChatStream_ConcatenatesChunksAndSignalsDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`{"message":{"content":"Hel"},"done":false}` + "\n"))
		flusher.Flush()
		_, _ = w.Write([]byte(`{"message":{"content":"lo"},"done":false}` + "\n"))
		flusher.Flush()
		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	ch, err := c.ChatStream(context.Background(), []model.ChatMessage{{Role: model.RoleUser, Content: "hi"}}, "llama3.1")
	require.NoError(t, err)

	var full string
	var sawDone bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			sawDone = true
			full = chunk.Text
		}
	}
	require.True(t, sawDone)
	require.Equal(t, "Hello", full)
}

func TestChatStream_CancellationAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`{"message":{"content":"first"},"done":false}` + "\n"))
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := testClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.ChatStream(ctx, []model.ChatMessage{{Role: model.RoleUser, Content: "hi"}}, "llama3.1")
	require.NoError(t, err)

	<-ch // first chunk
	cancel()

	for chunk := range ch {
		if chunk.Err != nil {
			return // cancellation observed; test passes
		}
	}
}

func TestDescribeImage_ReturnsResponseText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "a terminal window showing logs", "done": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	desc, err := c.DescribeImage(context.Background(), []byte{0x01, 0x02}, "llava", "describe this frame")
	require.NoError(t, err)
	require.Equal(t, "a terminal window showing logs", desc)
}
