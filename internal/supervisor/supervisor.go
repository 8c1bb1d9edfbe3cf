// Package supervisor implements C13: the boot and shutdown sequence that
// wires every other component together into one running daemon.
package supervisor

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreend/internal/capture/audio"
	"github.com/memscreen/memscreend/internal/capture/frames"
	"github.com/memscreen/memscreend/internal/capture/input"
	"github.com/memscreen/memscreend/internal/config"
	"github.com/memscreen/memscreend/internal/encoder"
	"github.com/memscreen/memscreend/internal/httpapi"
	"github.com/memscreen/memscreend/internal/ingest"
	"github.com/memscreen/memscreend/internal/model"
	"github.com/memscreen/memscreend/internal/modelrt"
	"github.com/memscreen/memscreend/internal/orchestrator"
	"github.com/memscreen/memscreend/internal/paths"
	"github.com/memscreen/memscreend/internal/query"
	"github.com/memscreen/memscreend/internal/store"
	"github.com/memscreen/memscreend/internal/vectorstore"
)

const (
	shutdownGrace       = 5 * time.Second
	ingestQueueDepth    = 64
	healthRefreshPeriod = 30 * time.Second
	orphanScanInterval  = 10 * time.Minute
)

// Supervisor owns the lifetime of every other component and implements
// spec.md §4.13's boot/shutdown sequence (spec §3's scheduling model).
type Supervisor struct {
	cfg      *config.Config
	paths    paths.Paths
	settings *config.RuntimeSettings
	log      zerolog.Logger

	store   store.Store
	vectors vectorstore.Store
	runtime *modelrt.Client

	ingestCh chan string
	wg       sync.WaitGroup

	httpServer *http.Server
	runtimeProc *runtimeProcess
}

// New builds a Supervisor over already-resolved paths/config/settings. It
// performs no I/O beyond what the caller already did resolving those three.
func New(cfg *config.Config, p paths.Paths, settings *config.RuntimeSettings, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		paths:    p,
		settings: settings,
		log:      log,
		ingestCh: make(chan string, ingestQueueDepth),
	}
}

// Run constructs every component in dependency order, binds the HTTP API,
// and blocks until ctx is cancelled, then shuts down in reverse order. It
// returns once shutdown has completed (or the grace period has elapsed).
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.openStores(ctx); err != nil {
		return err
	}
	defer s.vectors.Close()
	defer s.store.Close()

	rt, err := modelrt.New(s.cfg.RuntimeBaseURL, 0, s.log)
	if err != nil {
		return err
	}
	s.runtime = rt

	if s.cfg.RuntimeAutoStart && !s.runtime.Ping(ctx) {
		if proc, err := spawnRuntime(s.paths.Runtime, s.log); err != nil {
			s.log.Warn().Err(err).Msg("model runtime auto-start failed; continuing without it")
		} else {
			s.runtimeProc = proc
			defer s.runtimeProc.Stop()
		}
	}

	ffmpegPath, err := encoder.Resolve(s.paths.Runtime)
	if err != nil {
		s.log.Warn().Err(err).Msg("no ffmpeg-compatible encoder found; recording/start will fail until one is installed")
	}

	frameCapturer, err := frames.NewPlatform()
	if err != nil {
		return err
	}
	frameSrc := frames.New(frameCapturer)
	audioSrc := audio.New(audio.NewPlatform())
	inputTracker := input.New(input.NewPlatform(), s.store, s.log)

	orch := orchestrator.New(s.store, frameSrc, audioSrc, inputTracker, s.paths, s.log)
	orch.OnFinalized = s.enqueueIngest

	ingestPipeline := ingest.New(s.store, s.vectors, s.runtime, ingest.Config{
		VisionModel:           s.cfg.VisionModel,
		EmbeddingModel:        s.cfg.EmbeddingModel,
		ChatModel:             s.cfg.ChatModel,
		AnalysisFrameStride:   s.cfg.AnalysisFrameStride,
		MaxConcurrentAnalyses: s.cfg.MaxConcurrentAnalyses,
		FFmpegPath:            ffmpegPath,
	}, s.paths.Runtime, s.log)

	queryEngine := query.New(s.store, s.vectors, s.runtime, query.Config{
		EmbeddingModel:    s.cfg.EmbeddingModel,
		ChatModel:         s.cfg.ChatModel,
		ChatHistoryWindow: s.cfg.ChatHistoryWindow,
	}, s.log)

	server := httpapi.NewServer(httpapi.Deps{
		Store:         s.store,
		Vectors:       s.vectors,
		Runtime:       s.runtime,
		Orch:          orch,
		Ingest:        ingestPipeline,
		Query:         queryEngine,
		Frames:        frameSrc,
		Audio:         audioSrc,
		Input:         inputTracker,
		Paths:         s.paths,
		Config:        s.cfg,
		Settings:      s.settings,
		FFmpegPath:    ffmpegPath,
		EnqueueIngest: s.enqueueIngest,
		Log:           s.log,
	})

	ln, err := net.Listen("tcp", s.cfg.APIBind)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: server}

	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	s.wg.Add(1)
	go s.drainIngest(bgCtx, ingestPipeline)

	s.wg.Add(1)
	go s.scanOrphans(bgCtx)

	s.wg.Add(1)
	go s.refreshHealth(bgCtx)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- s.httpServer.Serve(ln)
	}()
	s.log.Info().Str("bind", s.cfg.APIBind).Msg("memscreend listening")

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}

	return s.shutdown(orch, cancelBG)
}

func (s *Supervisor) openStores(ctx context.Context) error {
	if s.cfg.DatabaseDSN != "" {
		st, err := store.OpenPostgres(ctx, s.cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		s.store = st
	} else {
		s.store = store.NewMemory()
	}

	if s.cfg.VectorStoreDSN != "" {
		vs, err := vectorstore.NewQdrant(s.cfg.VectorStoreDSN)
		if err != nil {
			return err
		}
		s.vectors = vs
	} else {
		s.vectors = vectorstore.NewMemory()
	}
	return nil
}

// enqueueIngest hands a finalized recording id to the ingestion queue,
// dropping it (with a log) rather than blocking the orchestrator if the
// queue is saturated.
func (s *Supervisor) enqueueIngest(recordingID string) {
	select {
	case s.ingestCh <- recordingID:
	default:
		s.log.Warn().Str("recording_id", recordingID).Msg("ingest queue full; dropping job")
	}
}

func (s *Supervisor) drainIngest(ctx context.Context, pipeline *ingest.Pipeline) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.ingestCh:
			if err := pipeline.Analyze(ctx, id); err != nil {
				s.log.Error().Err(err).Str("recording_id", id).Msg("ingestion failed")
			}
		}
	}
}

// scanOrphans reconciles Recording rows whose backing video file is gone,
// marking them failed rather than leaving them stuck in analysis_state
// pending/analyzing forever (spec §4.9/§8 invariant 7).
func (s *Supervisor) scanOrphans(ctx context.Context) {
	defer s.wg.Done()
	s.reconcileOnce(ctx)

	ticker := time.NewTicker(orphanScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileOnce(ctx)
		}
	}
}

func (s *Supervisor) reconcileOnce(ctx context.Context) {
	recordings, err := s.store.ListRecordings(ctx, model.RecordingFilter{}, store.OrderStartTimeDesc, 0)
	if err != nil {
		s.log.Error().Err(err).Msg("orphan scan: list recordings failed")
		return
	}
	failed := model.AnalysisFailed
	for _, rec := range recordings {
		if rec.AnalysisState == model.AnalysisDone || rec.AnalysisState == model.AnalysisFailed {
			continue
		}
		if !fileExists(rec.FilePath) {
			if err := s.store.UpdateRecording(ctx, rec.ID, model.RecordingPatch{AnalysisState: &failed}); err != nil {
				s.log.Error().Err(err).Str("recording_id", rec.ID).Msg("orphan scan: reconcile failed")
				continue
			}
			s.log.Warn().Str("recording_id", rec.ID).Msg("reconciled orphaned recording with missing file")
		}
	}
}

// refreshHealth periodically pings the runtime so the first /health request
// after a cold runtime doesn't pay the probe's full latency.
func (s *Supervisor) refreshHealth(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(healthRefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runtime.Ping(ctx)
		}
	}
}

func (s *Supervisor) shutdown(orch *orchestrator.Orchestrator, cancelBG context.CancelFunc) error {
	s.log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	orch.Stop()

	cancelBG()
	s.wg.Wait()

	s.log.Info().Msg("shutdown complete")
	return nil
}
