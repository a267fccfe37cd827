package capture_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/segment"
	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

func demoSegment() *segment.Segment {
	motion := make([]telemetry.MotionSample, 12)
	for i := range motion {
		motion[i] = telemetry.MotionSample{AccelZ: 9.8, TimestampMs: int64(i)}
	}
	return &segment.Segment{
		ID:          "segment_000",
		Timestamp:   time.Now().UTC(),
		Midpoint:    &segment.GeoPoint{Lat: 59.33, Lon: 18.07},
		AvgSpeedKmh: 36,
		LengthKm:    0.1,
		Motion:      motion,
		Locations: []telemetry.LocationSample{
			{Lat: 59.33, Lon: 18.07, SpeedMs: 10},
		},
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestRecordRawWritesStats(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	rec := capture.NewRecorder(store, "drive_1", true)

	rec.RecordRaw(demoSegment())

	stats := readJSON(t, filepath.Join(store.SegmentDir("drive_1", "segment_000"), capture.FileRawStats))
	assert.Equal(t, "segment_000", stats["segment_id"])
	assert.Equal(t, float64(12), stats["imu_readings_count"])
	assert.Equal(t, float64(1), stats["gps_points_count"])
	assert.Len(t, stats["imu_sample_first_5"], 5, "head sample only, never the full buffer")
	assert.Len(t, stats["imu_sample_last_5"], 5)
	assert.NotContains(t, stats, "imu_readings", "raw buffers are not persisted")
}

func TestRecordModelOutput(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	rec := capture.NewRecorder(store, "drive_1", true)

	raw := "Sure! Here is the JSON:\n{\"condition\": \"fair\"}"
	rec.RecordModelOutput("segment_000", raw, map[string]any{"condition": "fair"}, true, 2.25)

	segDir := store.SegmentDir("drive_1", "segment_000")
	data, err := os.ReadFile(filepath.Join(segDir, capture.FileRawResponse))
	require.NoError(t, err)
	assert.Equal(t, raw, string(data))

	parsed := readJSON(t, filepath.Join(segDir, capture.FileParsed))
	assert.Equal(t, true, parsed["parse_success"])
	assert.Equal(t, 2.25, parsed["inference_time_s"])
	assert.Equal(t, map[string]any{"condition": "fair"}, parsed["parsed_result"])
}

func TestRecordModelInput(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	rec := capture.NewRecorder(store, "drive_1", true)

	frames := [][]byte{[]byte("not-a-real-jpeg"), []byte("also-fake")}
	rec.RecordModelInput("segment_000", frames, "assess these", "system")

	segDir := store.SegmentDir("drive_1", "segment_000")
	assert.FileExists(t, filepath.Join(segDir, capture.DirVLMInputFrames, "vlm_frame_000.jpg"))
	assert.FileExists(t, filepath.Join(segDir, capture.DirVLMInputFrames, "vlm_frame_001.jpg"))

	prompt := readJSON(t, filepath.Join(segDir, capture.FilePrompt))
	assert.Equal(t, "assess these", prompt["assessment_prompt"])
	assert.Equal(t, "system", prompt["system_prompt"])
	assert.Equal(t, float64(2), prompt["num_images_sent"])
	assert.Equal(t, []any{"unknown", "unknown"}, prompt["image_sizes"])
}

func TestRecordFinalStripsFrames(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	rec := capture.NewRecorder(store, "drive_1", true)

	rec.RecordFinal("segment_000", map[string]any{
		"segment_id": "segment_000",
		"frames":     []any{"bulk"},
	})

	final := readJSON(t, filepath.Join(store.SegmentDir("drive_1", "segment_000"), capture.FileFinal))
	assert.Equal(t, "segment_000", final["segment_id"])
	assert.NotContains(t, final, "frames")
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	root := t.TempDir()
	rec := capture.NewRecorder(capture.NewStore(root), "drive_1", false)

	rec.RecordRaw(demoSegment())
	rec.RecordFrames("segment_000", [][]byte{[]byte("x")})
	rec.RecordModelOutput("segment_000", "raw", nil, false, 0)
	rec.RecordStage("segment_000", "iri_result", map[string]any{})
	rec.RecordFinal("segment_000", map[string]any{})

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *capture.Recorder
	rec.RecordRaw(demoSegment())
	rec.RecordStage("segment_000", "iri_result", map[string]any{})
}
