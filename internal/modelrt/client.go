// Package modelrt implements C4: an HTTP client to a local Ollama-compatible
// model runtime, exposing chat, vision description, embedding, and catalog
// capabilities over a configured base URL.
package modelrt

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/observability"
)

const (
	connectTimeout  = 5 * time.Second
	defaultTimeout  = 60 * time.Second
	heartbeatPeriod = 30 * time.Second
)

// Client talks to the configured runtime's chat/vision/embedding/catalog
// endpoints. All calls go over HTTP; see spec §4.4.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	embedCache *lru.Cache[string, []float32]

	pullMu sync.Map // model name -> *sync.Mutex, serializes EnsureModel per name
}

// New builds a Client against baseURL. embedCacheSize bounds the LRU used to
// memoize Embed calls (spec §4.4: "memoized by an LRU of bounded size").
func New(baseURL string, embedCacheSize int, log zerolog.Logger) (*Client, error) {
	if embedCacheSize <= 0 {
		embedCacheSize = 512
	}
	cache, err := lru.New[string, []float32](embedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		http:    observability.NewHTTPClient(&http.Client{Timeout: defaultTimeout}),
		log:     log,
		embedCache: cache,
	}, nil
}

// Ping reports whether the runtime answers its tags endpoint. It never
// returns an error of its own; callers use the bool for health reporting.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// fetchInstalledNames hits the runtime's tags endpoint and returns every
// model name it reports installed.
func (c *Client) fetchInstalledNames(ctx context.Context) ([]string, string) {
	type tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err.Error()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Sprintf("runtime returned %s: %s", resp.Status, string(b))
	}

	var tr tagsResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Sprintf("decode catalog: %v", err)
	}
	names := make([]string, len(tr.Models))
	for i, m := range tr.Models {
		names[i] = m.Name
	}
	return names, ""
}

// Catalog lists advertised models. Per spec §4.4, an unreachable runtime
// yields an empty list plus a runtime_error string rather than an error.
func (c *Client) Catalog(ctx context.Context, required []model.ModelCatalogEntry) ([]model.ModelCatalogEntry, string) {
	names, errMsg := c.fetchInstalledNames(ctx)
	if errMsg != "" {
		return nil, errMsg
	}

	installed := make(map[string]string, len(names))
	for _, n := range names {
		installed[n] = n
	}

	entries := make([]model.ModelCatalogEntry, len(required))
	for i, want := range required {
		entry := want
		if name, ok := installed[want.Name]; ok {
			entry.Installed = true
			entry.InstalledName = name
		}
		entries[i] = entry
	}
	return entries, ""
}

// ListInstalled returns every model name the runtime currently reports,
// for GET /chat/models (spec §6), which is not scoped to a required set the
// way Catalog is.
func (c *Client) ListInstalled(ctx context.Context) ([]string, string) {
	return c.fetchInstalledNames(ctx)
}

// chatMessage is the wire shape for /api/chat.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponseChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Chat sends messages and returns the full assistant reply as text.
func (c *Client) Chat(ctx context.Context, messages []model.ChatMessage, modelName string) (string, error) {
	ch, err := c.ChatStream(ctx, messages, modelName)
	if err != nil {
		return "", err
	}
	var full bytes.Buffer
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Done {
			return chunk.Text, nil
		}
		full.WriteString(chunk.Text)
	}
	return full.String(), nil
}

// StreamChunk is one piece of a streamed chat reply. The final chunk sent on
// the channel (before it is closed) carries Done=true and Text holding the
// full concatenation, per spec §4.4.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// ChatStream returns a lazily-produced channel of StreamChunk. Cancelling ctx
// aborts the underlying HTTP request; the channel is always closed.
func (c *Client) ChatStream(ctx context.Context, messages []model.ChatMessage, modelName string) (<-chan StreamChunk, error) {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	body, err := json.Marshal(chatRequest{Model: modelName, Messages: wire, Stream: true})
	if err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.RuntimeUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.Newf(apperr.RuntimeUnavailable, "chat: runtime returned %s: %s", resp.Status, string(b))
	}

	out := make(chan StreamChunk, 8)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		var full bytes.Buffer
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- StreamChunk{Err: apperr.New(apperr.Cancelled, ctx.Err())}
				return
			default:
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk chatResponseChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			full.WriteString(chunk.Message.Content)
			if chunk.Done {
				out <- StreamChunk{Text: full.String(), Done: true}
				return
			}
			out <- StreamChunk{Text: chunk.Message.Content}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: apperr.New(apperr.RuntimeUnavailable, err)}
		}
	}()
	return out, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// DescribeImage asks the runtime's vision model to describe imageBytes,
// steered by prompt (spec §4.4's describe_image).
func (c *Client) DescribeImage(ctx context.Context, imageBytes []byte, modelName, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  modelName,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageBytes)},
		Stream: false,
	})
	if err != nil {
		return "", apperr.New(apperr.Internal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperr.New(apperr.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.New(apperr.RuntimeUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return "", apperr.Newf(apperr.RuntimeUnavailable, "describe_image: runtime returned %s: %s", resp.Status, string(b))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", apperr.New(apperr.RuntimeUnavailable, err)
	}
	return gr.Response, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding for text under modelName, memoized by an LRU
// keyed on (model, sha256(text)) per spec §4.4.
func (c *Client) Embed(ctx context.Context, modelName, text string) ([]float32, error) {
	key := cacheKey(modelName, text)
	if v, ok := c.embedCache.Get(key); ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: modelName, Input: text})
	if err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.RuntimeUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.Newf(apperr.RuntimeUnavailable, "embed: runtime returned %s: %s", resp.Status, string(b))
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, apperr.New(apperr.RuntimeUnavailable, err)
	}
	if len(er.Embeddings) == 0 {
		return nil, apperr.Newf(apperr.RuntimeUnavailable, "embed: empty response")
	}
	vec := er.Embeddings[0]
	c.embedCache.Add(key, vec)
	return vec, nil
}

func cacheKey(modelName, text string) string {
	sum := sha256.Sum256([]byte(text))
	return modelName + "\x00" + base64.RawURLEncoding.EncodeToString(sum[:])
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type PullProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// EnsureModel streams pull progress for name, guaranteeing at most one
// in-flight pull per model name (spec §5).
func (c *Client) EnsureModel(ctx context.Context, name string) (<-chan PullProgress, error) {
	muAny, _ := c.pullMu.LoadOrStore(name, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()

	body, err := json.Marshal(pullRequest{Model: name, Stream: true})
	if err != nil {
		mu.Unlock()
		return nil, apperr.New(apperr.Internal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		mu.Unlock()
		return nil, apperr.New(apperr.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		mu.Unlock()
		return nil, apperr.New(apperr.RuntimeUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		mu.Unlock()
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.Newf(apperr.RuntimeUnavailable, "pull %s: runtime returned %s: %s", name, resp.Status, string(b))
	}

	out := make(chan PullProgress, 8)
	go func() {
		defer mu.Unlock()
		defer resp.Body.Close()
		defer close(out)

		hb := time.NewTicker(heartbeatPeriod)
		defer hb.Stop()
		lines := make(chan PullProgress)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				var p PullProgress
				if err := json.Unmarshal(scanner.Bytes(), &p); err == nil {
					lines <- p
				}
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.C:
				c.log.Debug().Str("model", name).Msg("ensure_model heartbeat")
			case p, ok := <-lines:
				if !ok {
					return
				}
				out <- p
			}
		}
	}()
	return out, nil
}
