package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/pipeline"
	"github.com/pulseroad/pulse/backend/internal/segment"
	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

// fakeVLM returns a canned response or error for every call.
type fakeVLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeVLM) Assess(ctx context.Context, frames [][]byte, prompt, systemPrompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func testSegment(id string, index int) *segment.Segment {
	return &segment.Segment{
		ID:        id,
		Index:     index,
		Timestamp: time.Now().UTC(),
		Midpoint:  &segment.GeoPoint{Lat: 59.33, Lon: 18.07},
		LengthKm:  0.1,
		Motion: []telemetry.MotionSample{
			{AccelZ: 9.0}, {AccelZ: 10.6}, {AccelZ: 9.2}, {AccelZ: 10.4},
		},
		Frames: [][]byte{[]byte("jpeg-bytes")},
	}
}

func newTestPipeline(t *testing.T, vlm pipeline.VLMClient) (*pipeline.RoadPipeline, string) {
	t.Helper()
	root := t.TempDir()
	rec := capture.NewRecorder(capture.NewStore(root), "drive_1", true)
	return pipeline.New(pipeline.Config{
		SessionID:    "drive_1",
		Recorder:     rec,
		VLM:          vlm,
		MaxVLMFrames: 4,
	}), root
}

func TestProcessSegmentWithVLM(t *testing.T) {
	vlm := &fakeVLM{response: `{"condition":"poor","condition_score":0.3,"distresses":["pothole"],"confidence":0.9}`}
	p, root := newTestPipeline(t, vlm)

	result, err := p.ProcessSegment(context.Background(), testSegment("segment_000", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, vlm.calls)

	assert.Equal(t, "segment_000", result.SegmentID)
	assert.Equal(t, "poor", result.Condition)
	require.NotNil(t, result.ConditionScore)
	assert.Equal(t, 0.3, *result.ConditionScore)
	require.NotNil(t, result.RoughnessIndex)
	assert.Equal(t, []string{"pothole"}, result.Distresses)

	for _, key := range []string{"vlm_assessment", "iri_result", "depth_result", "acoustic_result", "fusion_result"} {
		assert.Contains(t, result.Stages, key)
	}

	// Every stage left an artifact behind.
	segDir := filepath.Join(root, "drive_1", "segment_000")
	for _, name := range []string{
		capture.FileRawStats,
		capture.FilePrompt,
		capture.FileRawResponse,
		capture.FileParsed,
		"iri_result.json",
		"depth_result.json",
		"acoustic_result.json",
		"fusion_result.json",
		capture.FileFinal,
	} {
		assert.FileExists(t, filepath.Join(segDir, name))
	}
}

func TestProcessSegmentParseFailureStillCompletes(t *testing.T) {
	vlm := &fakeVLM{response: "no json in sight"}
	p, root := newTestPipeline(t, vlm)

	result, err := p.ProcessSegment(context.Background(), testSegment("segment_000", 0))
	require.NoError(t, err, "an unparseable response is a data point, not a failure")

	require.NotNil(t, result.ConditionScore, "sensor fallback fills in")
	assert.Contains(t, result.Stages, "vlm_assessment")
	assert.FileExists(t, filepath.Join(root, "drive_1", "segment_000", capture.FileRawResponse))
}

func TestProcessSegmentVLMTransportErrorFails(t *testing.T) {
	vlm := &fakeVLM{err: errors.New("connection refused")}
	p, _ := newTestPipeline(t, vlm)

	_, err := p.ProcessSegment(context.Background(), testSegment("segment_000", 0))
	assert.ErrorContains(t, err, "connection refused")

	summary := p.SessionSummary()
	assert.Zero(t, summary.SegmentsProcessed, "a failed segment never enters the summary")
}

func TestProcessSegmentWithoutVLM(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	result, err := p.ProcessSegment(context.Background(), testSegment("segment_000", 0))
	require.NoError(t, err)
	require.NotNil(t, result.RoughnessIndex)
	assert.NotEmpty(t, result.Condition)
}

func TestSessionSummaryAccumulates(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeVLM{response: `{"condition":"fair","condition_score":0.5}`})

	for i := 0; i < 3; i++ {
		seg := testSegment(segID(i), i)
		_, err := p.ProcessSegment(context.Background(), seg)
		require.NoError(t, err)
	}

	summary := p.SessionSummary()
	assert.Equal(t, "drive_1", summary.SessionID)
	assert.Equal(t, 3, summary.SegmentsProcessed)
	assert.InDelta(t, 0.3, summary.TotalDistanceKm, 1e-9)
	require.NotNil(t, summary.AvgConditionScore)
	assert.InDelta(t, 0.5, *summary.AvgConditionScore, 1e-9)
	assert.Len(t, summary.Segments, 3)
}

func segID(i int) string {
	return []string{"segment_000", "segment_001", "segment_002"}[i]
}
