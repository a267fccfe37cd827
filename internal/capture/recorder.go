package capture

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/pulseroad/pulse/backend/internal/metrics"
	"github.com/pulseroad/pulse/backend/internal/segment"
)

const (
	motionSampleN   = 5
	locationSampleN = 3
)

// Recorder captures every stage of a segment's processing into the
// artifact store. It is an instrumentation side channel: no method ever
// returns an error to the caller. Failures are logged and counted, and
// every method is a no-op when capture is disabled or the receiver is
// nil.
type Recorder struct {
	store     *Store
	sessionID string
	enabled   bool
}

// NewRecorder creates a recorder for one session.
func NewRecorder(store *Store, sessionID string, enabled bool) *Recorder {
	return &Recorder{store: store, sessionID: sessionID, enabled: enabled}
}

func (r *Recorder) skip() bool {
	return r == nil || !r.enabled
}

// RecordRaw writes summary statistics about a segment's raw sensor
// buffers: counts plus head/tail samples, never the full buffers.
func (r *Recorder) RecordRaw(seg *segment.Segment) {
	if r.skip() {
		return
	}

	stats := map[string]any{
		"segment_id":          seg.ID,
		"timestamp":           seg.Timestamp,
		"gps_midpoint":        seg.Midpoint,
		"avg_speed_kmh":       seg.AvgSpeedKmh,
		"avg_speed_ms":        seg.AvgSpeedMs,
		"length_km":           seg.LengthKm,
		"imu_readings_count":  len(seg.Motion),
		"frames_count":        len(seg.Frames),
		"gps_points_count":    len(seg.Locations),
		"audio_packets_count": len(seg.Audio),
	}

	if n := len(seg.Motion); n > 0 {
		stats["imu_sample_first_5"] = seg.Motion[:min(n, motionSampleN)]
		stats["imu_sample_last_5"] = seg.Motion[max(0, n-motionSampleN):]
	}
	if n := len(seg.Locations); n > 0 {
		stats["gps_sample_first_3"] = seg.Locations[:min(n, locationSampleN)]
		stats["gps_sample_last_3"] = seg.Locations[max(0, n-locationSampleN):]
	}

	r.writeJSON(seg.ID, FileRawStats, stats)
}

// RecordFrames saves the camera frames captured for a segment.
func (r *Recorder) RecordFrames(segmentID string, frames [][]byte) {
	if r.skip() || len(frames) == 0 {
		return
	}
	for i, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		name := fmt.Sprintf("frame_%03d.jpg", i)
		if err := r.store.WriteBinary(r.sessionID, segmentID, DirCapturedFrames, name, frame); err != nil {
			r.fail("captured_frames", segmentID, err)
		}
	}
}

// RecordModelInput saves the exact images and prompt text handed to the
// vision model. This must be what was actually sent, byte for byte, so
// prompt/response mismatches can be debugged after the fact.
func (r *Recorder) RecordModelInput(segmentID string, frames [][]byte, prompt, systemPrompt string) {
	if r.skip() {
		return
	}

	sizes := make([]string, 0, len(frames))
	for i, frame := range frames {
		name := fmt.Sprintf("vlm_frame_%03d.jpg", i)
		if err := r.store.WriteBinary(r.sessionID, segmentID, DirVLMInputFrames, name, frame); err != nil {
			r.fail("vlm_input_frames", segmentID, err)
		}
		sizes = append(sizes, frameSize(frame))
	}

	r.writeJSON(segmentID, FilePrompt, map[string]any{
		"system_prompt":     systemPrompt,
		"assessment_prompt": prompt,
		"num_images_sent":   len(frames),
		"image_sizes":       sizes,
	})
}

// RecordModelOutput saves the verbatim raw model response (no
// normalization) and the parse result, tagging parse success explicitly.
func (r *Recorder) RecordModelOutput(segmentID, rawText string, parsed any, parseOK bool, inferenceSeconds float64) {
	if r.skip() {
		return
	}

	if err := r.store.WriteText(r.sessionID, segmentID, FileRawResponse, rawText); err != nil {
		r.fail(FileRawResponse, segmentID, err)
	}

	r.writeJSON(segmentID, FileParsed, map[string]any{
		"inference_time_s": inferenceSeconds,
		"parse_success":    parseOK,
		"parsed_result":    parsed,
	})
}

// RecordStage captures the result document of one named analysis stage.
func (r *Recorder) RecordStage(segmentID, stageName string, result any) {
	if r.skip() {
		return
	}
	r.writeJSON(segmentID, stageName+".json", result)
}

// RecordFinal saves the merged pipeline result. Frame buffers are
// stripped before serialization to bound artifact size.
func (r *Recorder) RecordFinal(segmentID string, result any) {
	if r.skip() {
		return
	}
	norm, err := Normalize(result)
	if err != nil {
		r.warn(FileFinal, segmentID, err)
	}
	if m, ok := norm.(map[string]any); ok {
		delete(m, "frames")
	}
	if err := r.store.WriteJSON(r.sessionID, segmentID, FileFinal, norm); err != nil {
		r.fail(FileFinal, segmentID, err)
	}
}

func (r *Recorder) writeJSON(segmentID, name string, v any) {
	if err := r.store.WriteJSON(r.sessionID, segmentID, name, v); err != nil {
		r.fail(name, segmentID, err)
	}
}

func (r *Recorder) fail(artifact, segmentID string, err error) {
	metrics.CaptureFailures.WithLabelValues(artifact).Inc()
	slog.Warn("debug capture failed", "session_id", r.sessionID, "segment_id", segmentID, "artifact", artifact, "error", err)
}

func (r *Recorder) warn(artifact, segmentID string, err error) {
	metrics.CaptureFailures.WithLabelValues(artifact).Inc()
	slog.Warn("debug capture normalization", "session_id", r.sessionID, "segment_id", segmentID, "artifact", artifact, "error", err)
}

func frameSize(frame []byte) string {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
}
