package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/metrics"
	"github.com/pulseroad/pulse/backend/internal/segment"
)

// Processor turns ready segments into result documents for one session.
//
// Acquire/Release frame every in-flight segment. Finalise may be called
// while segments are still being processed (the ingestion loop does not
// wait for its tasks); the actual resource release is deferred until the
// last holder releases, so a task never sees its pipeline torn down
// underneath it.
type Processor interface {
	ProcessSegment(ctx context.Context, seg *segment.Segment) (*SegmentResult, error)
	SessionSummary() Summary
	Acquire() bool
	Release()
	Finalise()
}

// Config assembles a RoadPipeline.
type Config struct {
	SessionID    string
	Recorder     *capture.Recorder
	VLM          VLMClient // nil disables the vision stage
	MaxVLMFrames int
}

// RoadPipeline is the production Processor: vision assessment, motion
// roughness, depth proxy, acoustic classification, fusion, with every
// stage captured through the Recorder.
type RoadPipeline struct {
	cfg Config

	mu      sync.Mutex
	results []SegmentResult
	totalKm float64
	rough   runningMean
	cond    runningMean

	refMu     sync.Mutex
	refs      int
	finalised bool
	released  bool
}

type runningMean struct {
	sum float64
	n   int
}

func (m *runningMean) add(v float64) {
	m.sum += v
	m.n++
}

func (m runningMean) mean() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

// New creates a pipeline for one session.
func New(cfg Config) *RoadPipeline {
	if cfg.MaxVLMFrames <= 0 {
		cfg.MaxVLMFrames = 4
	}
	return &RoadPipeline{cfg: cfg}
}

func (p *RoadPipeline) ProcessSegment(ctx context.Context, seg *segment.Segment) (*SegmentResult, error) {
	start := time.Now()
	rec := p.cfg.Recorder

	rec.RecordRaw(seg)
	rec.RecordFrames(seg.ID, seg.Frames)

	assessment, err := p.assess(ctx, seg)
	if err != nil {
		return nil, err
	}

	rough := p.timed("iri", func() RoughnessResult {
		return computeRoughness(seg.Motion, seg.AvgSpeedMs)
	})
	rec.RecordStage(seg.ID, "iri_result", rough)

	depth := estimateDepth(seg.Motion, len(seg.Frames))
	rec.RecordStage(seg.ID, "depth_result", depth)

	acoustic := classifyAcoustic(seg.Audio)
	rec.RecordStage(seg.ID, "acoustic_result", acoustic)

	fusion := fuse(assessment, rough, acoustic)
	rec.RecordStage(seg.ID, "fusion_result", fusion)

	result := &SegmentResult{
		SegmentID:      seg.ID,
		Timestamp:      seg.Timestamp,
		Midpoint:       seg.Midpoint,
		AvgSpeedKmh:    seg.AvgSpeedKmh,
		LengthKm:       seg.LengthKm,
		RoughnessIndex: fusion.RoughnessIndex,
		ConditionScore: fusion.ConditionScore,
		Condition:      fusion.Condition,
		Distresses:     fusion.Distresses,
		Stages: map[string]any{
			"vlm_assessment":  assessment,
			"iri_result":      rough,
			"depth_result":    depth,
			"acoustic_result": acoustic,
			"fusion_result":   fusion,
		},
		ProcessingMs: float64(time.Since(start).Milliseconds()),
	}
	rec.RecordFinal(seg.ID, result)

	p.mu.Lock()
	p.results = append(p.results, *result)
	p.totalKm += seg.LengthKm
	if result.RoughnessIndex != nil {
		p.rough.add(*result.RoughnessIndex)
	}
	if result.ConditionScore != nil {
		p.cond.add(*result.ConditionScore)
	}
	p.mu.Unlock()

	metrics.SegmentDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// assess runs the vision stage: input capture, model call, output
// capture. A parse failure is captured and carried as the sentinel
// assessment; only a transport/API failure fails the segment.
func (p *RoadPipeline) assess(ctx context.Context, seg *segment.Segment) (Assessment, error) {
	if p.cfg.VLM == nil || len(seg.Frames) == 0 {
		return Assessment{}, nil
	}

	frames := selectFrames(seg.Frames, p.cfg.MaxVLMFrames)
	prompt := BuildPrompt(len(frames))
	p.cfg.Recorder.RecordModelInput(seg.ID, frames, prompt, VLMSystemPrompt)

	start := time.Now()
	raw, err := p.cfg.VLM.Assess(ctx, frames, prompt, VLMSystemPrompt)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues("vlm").Observe(elapsed.Seconds())
	if err != nil {
		return Assessment{}, fmt.Errorf("vlm: %w", err)
	}

	assessment, ok := ParseAssessment(raw)
	p.cfg.Recorder.RecordModelOutput(seg.ID, raw, assessment, ok, elapsed.Seconds())
	if !ok {
		slog.Warn("vlm response did not parse", "session_id", p.cfg.SessionID, "segment_id", seg.ID)
	}
	return assessment, nil
}

func (p *RoadPipeline) timed(stage string, fn func() RoughnessResult) RoughnessResult {
	start := time.Now()
	out := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return out
}

// SessionSummary returns the running rollup for the live session.
func (p *RoadPipeline) SessionSummary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	segs := make([]SegmentResult, len(p.results))
	copy(segs, p.results)

	return Summary{
		SessionID:         p.cfg.SessionID,
		SegmentsProcessed: len(p.results),
		TotalDistanceKm:   p.totalKm,
		AvgRoughness:      p.rough.mean(),
		AvgConditionScore: p.cond.mean(),
		Segments:          segs,
	}
}

// Acquire takes a reference for one in-flight segment. It fails once
// the pipeline's resources have been released.
func (p *RoadPipeline) Acquire() bool {
	p.refMu.Lock()
	defer p.refMu.Unlock()
	if p.released {
		return false
	}
	p.refs++
	return true
}

// Release drops a reference; the last release after Finalise performs
// the deferred resource release.
func (p *RoadPipeline) Release() {
	p.refMu.Lock()
	defer p.refMu.Unlock()
	p.refs--
	if p.refs <= 0 && p.finalised && !p.released {
		p.release()
	}
}

// Finalise marks the session done. With no segments in flight it
// releases immediately; otherwise the last Release does.
func (p *RoadPipeline) Finalise() {
	p.refMu.Lock()
	defer p.refMu.Unlock()
	if p.finalised {
		return
	}
	p.finalised = true
	if p.refs <= 0 && !p.released {
		p.release()
	}
}

// release frees backend resources. Caller holds refMu.
func (p *RoadPipeline) release() {
	p.released = true
	if closer, ok := p.cfg.VLM.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	slog.Info("pipeline finalised", "session_id", p.cfg.SessionID, "segments", len(p.results))
}

// selectFrames picks up to limit frames evenly spaced across the segment.
func selectFrames(frames [][]byte, limit int) [][]byte {
	if len(frames) <= limit {
		return frames
	}
	out := make([][]byte, 0, limit)
	step := float64(len(frames)) / float64(limit)
	for i := 0; i < limit; i++ {
		out = append(out, frames[int(float64(i)*step)])
	}
	return out
}
