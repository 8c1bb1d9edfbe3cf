// Package query implements C11: hybrid retrieval over the metadata store's
// keyword search and the vector store's similarity search, fused by
// reciprocal-rank fusion, plus chat-thread memory built from that retrieval.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
	"github.com/memscreen/memscreend/internal/store"
	"github.com/memscreen/memscreend/internal/vectorstore"
)

// rrfK is the reciprocal-rank-fusion constant from spec §4.11's formula:
// score = Σ 1/(60+rank_i).
const rrfK = 60

// vectorOverfetchRatio implements spec §4.11's k' = 4k vector overfetch.
const vectorOverfetchRatio = 4

// defaultChatRetrievalTopK is spec §4.11's "top 6 from Retrieval" used to
// build a chat context window.
const defaultChatRetrievalTopK = 6

const defaultSystemPrompt = "You are the memory assistant for a continuous " +
	"screen-recording tool. Answer using the user's own recorded activity " +
	"when relevant; say when you don't have enough context rather than " +
	"guessing."

// Config carries the query-relevant subset of global configuration.
type Config struct {
	EmbeddingModel    string
	ChatModel         string
	ChatHistoryWindow int // spec §4.11: "N configurable, default 12"
	SystemPrompt      string
}

// Engine composes C2+C3+C4 into hybrid retrieval and chat-thread memory.
type Engine struct {
	store   store.Store
	vectors vectorstore.Store
	runtime *modelrt.Client
	cfg     Config
	log     zerolog.Logger
}

// New builds an Engine. Defaults fill in ChatHistoryWindow/SystemPrompt when
// the caller leaves them zero.
func New(st store.Store, vectors vectorstore.Store, runtime *modelrt.Client, cfg Config, log zerolog.Logger) *Engine {
	if cfg.ChatHistoryWindow <= 0 {
		cfg.ChatHistoryWindow = 12
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Engine{
		store: st, vectors: vectors, runtime: runtime, cfg: cfg,
		log: log.With().Str("component", "query").Logger(),
	}
}

// Hit is one fused Recording+FrameArtifact result from Retrieve.
type Hit struct {
	Recording model.Recording
	Snippet   string
	TOffset   float64
	Score     float64
}

// Retrieve runs spec §4.11's hybrid retrieval: a vector query over C3 for
// the top k'=4k, a keyword search over C2, fused by reciprocal-rank fusion
// and tie-broken by recency.
func (e *Engine) Retrieve(ctx context.Context, q string, k int, filter model.RecordingFilter) ([]Hit, error) {
	if k <= 0 {
		k = defaultChatRetrievalTopK
	}
	kPrime := k * vectorOverfetchRatio

	vecRank, vecBestOffset, vecSnippet := e.vectorRank(ctx, q, kPrime)
	kwRecordings, err := e.store.SearchRecordings(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	kwRank := make(map[string]int, len(kwRecordings))
	byID := make(map[string]model.Recording, len(kwRecordings))
	for i, r := range kwRecordings {
		if !matchesFilter(r, filter) {
			continue
		}
		kwRank[r.ID] = i
		byID[r.ID] = r
	}

	scores := make(map[string]float64)
	for id, rank := range vecRank {
		scores[id] += 1.0 / float64(rrfK+rank+1)
	}
	for id, rank := range kwRank {
		scores[id] += 1.0 / float64(rrfK+rank+1)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}

	recordings := make(map[string]model.Recording, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			recordings[id] = r
			continue
		}
		r, err := e.store.GetRecording(ctx, id)
		if err != nil {
			continue // the recording was deleted between the vector hit and now
		}
		if !matchesFilter(r, filter) {
			continue
		}
		recordings[id] = r
	}

	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		ri, iok := recordings[ids[i]]
		rj, jok := recordings[ids[j]]
		if iok && jok {
			return ri.StartTime.After(rj.StartTime)
		}
		return ids[i] < ids[j]
	})

	hits := make([]Hit, 0, k)
	for _, id := range ids {
		r, ok := recordings[id]
		if !ok {
			continue
		}
		snippet := vecSnippet[id]
		if snippet == "" {
			snippet = r.ContentSummary
		}
		hits = append(hits, Hit{
			Recording: r,
			Snippet:   snippet,
			TOffset:   vecBestOffset[id],
			Score:     scores[id],
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// vectorRank embeds q, queries C3's combined-source collection for the
// configured embedding model, and collapses per-frame hits down to the best
// (lowest-rank) hit per recording id.
func (e *Engine) vectorRank(ctx context.Context, q string, kPrime int) (rank map[string]int, bestOffset map[string]float64, snippet map[string]string) {
	rank = map[string]int{}
	bestOffset = map[string]float64{}
	snippet = map[string]string{}

	vec, err := e.runtime.Embed(ctx, e.cfg.EmbeddingModel, q)
	if err != nil {
		e.log.Warn().Err(err).Msg("query embedding failed; falling back to keyword-only retrieval")
		return rank, bestOffset, snippet
	}
	collection := vectorstore.CollectionName(e.cfg.EmbeddingModel)
	results, err := e.vectors.Query(ctx, collection, vec, kPrime, nil)
	if err != nil {
		e.log.Warn().Err(err).Msg("vector query failed; falling back to keyword-only retrieval")
		return rank, bestOffset, snippet
	}

	nextRank := 0
	for _, res := range results {
		recID := res.Metadata["recording_id"]
		if recID == "" {
			continue
		}
		if _, seen := rank[recID]; seen {
			continue
		}
		rank[recID] = nextRank
		nextRank++
		artifacts, err := e.store.ListFrameArtifacts(ctx, recID)
		if err == nil {
			for _, a := range artifacts {
				if a.EmbeddingRef == res.ID {
					bestOffset[recID] = a.TOffsetSeconds
					snippet[recID] = strings.TrimSpace(a.OCRText + "\n" + a.VisionDescription)
					break
				}
			}
		}
	}
	return rank, bestOffset, snippet
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
		found := false
		for _, t := range append(append([]string{}, r.UserTags...), r.ContentTags...) {
			if t == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
