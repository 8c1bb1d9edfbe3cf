// Package ingest implements C10: the background pipeline that extracts
// OCR/vision/embeddings for a finalized recording and derives its
// recording-level summary and tags.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
	"github.com/memscreen/memscreend/internal/store"
	"github.com/memscreen/memscreend/internal/vectorstore"
)

const embedBatchSize = 64

const visionPrompt = "Describe the salient entities, the user's apparent activity, and the visible application in this screenshot. Be concise."

// Config carries the ingestion-relevant subset of the global configuration.
type Config struct {
	VisionModel           string
	EmbeddingModel        string
	ChatModel             string
	AnalysisFrameStride   int
	MaxConcurrentAnalyses int
	FFmpegPath            string
}

// Pipeline analyzes finalized recordings (spec §4.10).
type Pipeline struct {
	store    store.Store
	vectors  vectorstore.Store
	runtime  *modelrt.Client
	cfg      Config
	log      zerolog.Logger
	sem      chan struct{}
	tmpRoot  string
}

// New builds a Pipeline, throttled to cfg.MaxConcurrentAnalyses concurrent
// Analyze calls (grounded on the teacher's IngestionConfig.MaxWorkers
// buffered-semaphore sizing idiom).
func New(st store.Store, vectors vectorstore.Store, runtime *modelrt.Client, cfg Config, tmpRoot string, log zerolog.Logger) *Pipeline {
	workers := cfg.MaxConcurrentAnalyses
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store: st, vectors: vectors, runtime: runtime, cfg: cfg,
		tmpRoot: tmpRoot, log: log.With().Str("component", "ingest").Logger(),
		sem: make(chan struct{}, workers),
	}
}

// Analyze runs the five-step pipeline for one recording id. Re-analyzing is
// idempotent: existing frame artifacts are deleted before new ones are
// written.
func (p *Pipeline) Analyze(ctx context.Context, recordingID string) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return apperr.New(apperr.Cancelled, ctx.Err())
	}
	defer func() { <-p.sem }()

	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}

	analyzing := model.AnalysisAnalyzing
	_ = p.store.UpdateRecording(ctx, recordingID, model.RecordingPatch{AnalysisState: &analyzing})

	if err := p.store.DeleteFrameArtifacts(ctx, recordingID); err != nil {
		return p.fail(ctx, recordingID, err)
	}
	if err := p.vectors.DeleteByFilter(ctx, vectorstore.CollectionName(p.cfg.EmbeddingModel), map[string]string{"recording_id": recordingID}); err != nil {
		p.log.Warn().Err(err).Str("recording_id", recordingID).Msg("vector cleanup before re-analysis failed; proceeding")
	}

	tmpDir, err := os.MkdirTemp(p.tmpRoot, "ingest-"+recordingID+"-")
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}
	defer os.RemoveAll(tmpDir)

	frames, err := extractFrames(ctx, p.cfg.FFmpegPath, rec.FilePath, p.cfg.AnalysisFrameStride, rec.FPS, tmpDir)
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}
	if len(frames) > 0 {
		frames[len(frames)-1].TOffsetSeconds = rec.DurationSeconds
	}

	artifacts := make([]model.FrameArtifact, 0, len(frames))
	combinedTexts := make([]string, 0, len(frames))
	vectors := make([]model.VectorRecord, 0, len(frames))

	for _, f := range frames {
		select {
		case <-ctx.Done():
			return p.rollback(ctx, recordingID, vectors)
		default:
		}

		ocrText := ocrImage(f.ImagePath)

		var visionDesc string
		if imgBytes, rerr := os.ReadFile(f.ImagePath); rerr == nil {
			if desc, verr := p.runtime.DescribeImage(ctx, imgBytes, p.cfg.VisionModel, visionPrompt); verr == nil {
				visionDesc = desc
			}
		}

		if ocrText == "" && visionDesc == "" {
			continue // spec §4.10: missing both means the frame is skipped
		}
		combined := strings.TrimSpace(ocrText + "\n" + visionDesc)

		artifactID := fmt.Sprintf("%s-%012.3f", recordingID, f.TOffsetSeconds)
		artifacts = append(artifacts, model.FrameArtifact{
			ID: artifactID, RecordingID: recordingID, TOffsetSeconds: f.TOffsetSeconds,
			OCRText: ocrText, VisionDescription: visionDesc, EmbeddingRef: artifactID,
		})
		combinedTexts = append(combinedTexts, combined)

		vec, verr := p.runtime.Embed(ctx, p.cfg.EmbeddingModel, combined)
		if verr != nil {
			p.log.Warn().Err(verr).Str("recording_id", recordingID).Msg("embedding failed for frame; artifact kept without a vector")
			continue
		}
		vectors = append(vectors, model.VectorRecord{
			ID: artifactID, Vector: vec, RecordingID: recordingID,
			TOffset: f.TOffsetSeconds, Source: model.VectorSourceCombined,
		})
	}

	if len(artifacts) == 0 {
		return p.fail(ctx, recordingID, fmt.Errorf("all frames failed OCR and vision analysis"))
	}

	if err := p.store.PutFrameArtifacts(ctx, recordingID, artifacts); err != nil {
		return p.fail(ctx, recordingID, err)
	}

	if len(vectors) > 0 {
		collection := vectorstore.CollectionName(p.cfg.EmbeddingModel)
		if err := p.vectors.EnsureCollection(ctx, collection, len(vectors[0].Vector)); err != nil {
			return p.rollback(ctx, recordingID, vectors, err)
		}
		for start := 0; start < len(vectors); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(vectors) {
				end = len(vectors)
			}
			if err := p.vectors.Upsert(ctx, collection, vectors[start:end]); err != nil {
				return p.rollback(ctx, recordingID, vectors[:start], err)
			}
		}
	}

	summary, tags := p.summarize(ctx, recordingID, combinedTexts)
	appName := rec.AppName
	done := model.AnalysisDone
	err = p.store.UpdateRecording(ctx, recordingID, model.RecordingPatch{
		AnalysisState:  &done,
		ContentSummary: &summary,
		ContentTags:    tags,
		AppName:        &appName,
	})
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, recordingID string, combined []string) (string, []string) {
	joined := strings.Join(combined, "\n---\n")
	prompt := "Summarize the user's activity across these screen captures in 1-2 sentences, " +
		"then list 3-8 short noun-phrase tags. Respond as:\nSUMMARY: <summary>\nTAGS: <comma-separated tags>\n\n" + joined

	reply, err := p.runtime.Chat(ctx, []model.ChatMessage{{Role: model.RoleUser, Content: prompt}}, p.cfg.ChatModel)
	if err != nil {
		p.log.Warn().Err(err).Str("recording_id", recordingID).Msg("summary generation failed")
		return "", nil
	}
	return parseSummaryReply(reply)
}

func parseSummaryReply(reply string) (summary string, tags []string) {
	lines := strings.Split(reply, "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "SUMMARY:"):
			summary = strings.TrimSpace(line[len("SUMMARY:"):])
		case strings.HasPrefix(strings.ToUpper(line), "TAGS:"):
			raw := strings.Split(line[len("TAGS:"):], ",")
			tags = normalizeTags(raw)
		}
	}
	if summary == "" {
		summary = strings.TrimSpace(reply)
	}
	return summary, tags
}

func (p *Pipeline) fail(ctx context.Context, recordingID string, cause error) error {
	failed := model.AnalysisFailed
	_ = p.store.UpdateRecording(ctx, recordingID, model.RecordingPatch{AnalysisState: &failed})
	return apperr.New(apperr.Internal, cause)
}

// rollback deletes any vector upserts already committed in this task before
// surfacing err (spec §5: cancellation rolls back the current task's
// writes, preserving prior committed batches).
func (p *Pipeline) rollback(ctx context.Context, recordingID string, committed []model.VectorRecord, cause ...error) error {
	if len(committed) > 0 {
		_ = p.vectors.DeleteByFilter(ctx, vectorstore.CollectionName(p.cfg.EmbeddingModel), map[string]string{"recording_id": recordingID})
	}
	if len(cause) > 0 && cause[0] != nil {
		return p.fail(ctx, recordingID, cause[0])
	}
	return p.fail(ctx, recordingID, apperr.New(apperr.Cancelled, ctx.Err()))
}
