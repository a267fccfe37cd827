package pipeline

import (
	"time"

	"github.com/pulseroad/pulse/backend/internal/segment"
)

// ParseFailed is the sentinel recorded when the vision model's response
// could not be parsed. A parse failure is a data point, not an error:
// the segment still completes with the remaining stages.
const ParseFailed = "parse_failed"

// Assessment is the parsed vision-model judgment of a segment. Pointer
// fields distinguish "model did not report" from a true zero.
type Assessment struct {
	Condition      *string  `json:"condition,omitempty"`
	ConditionScore *float64 `json:"condition_score,omitempty"`
	Distresses     []string `json:"distresses,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ParseOK reports whether the assessment came from a successful parse.
func (a Assessment) ParseOK() bool {
	return a.Error != ParseFailed
}

// RoughnessResult is the motion-derived roughness stage output.
type RoughnessResult struct {
	IRI         *float64 `json:"iri_m_per_km,omitempty"`
	RMSAccelMs2 float64  `json:"rms_accel_ms2"`
	SampleCount int      `json:"sample_count"`
	AvgSpeedKmh float64  `json:"avg_speed_kmh"`
}

// DepthResult is the depth-estimation stage output.
type DepthResult struct {
	MaxDeviationCm  *float64 `json:"max_deviation_cm,omitempty"`
	MeanDeviationCm *float64 `json:"mean_deviation_cm,omitempty"`
	FrameCount      int      `json:"frame_count"`
	Method          string   `json:"method"`
}

// AcousticResult is the acoustic-classification stage output.
type AcousticResult struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	PacketCount int     `json:"packet_count"`
}

// FusionResult combines the per-stage outputs into the segment verdict.
type FusionResult struct {
	RoughnessIndex *float64 `json:"roughness_index,omitempty"`
	ConditionScore *float64 `json:"condition_score,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	Distresses     []string `json:"distresses,omitempty"`
	Sources        []string `json:"sources"`
}

// SegmentResult is the merged pipeline output for one segment, pushed to
// the client and persisted (minus binary data) as pipeline_result.json.
type SegmentResult struct {
	SegmentID      string            `json:"segment_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Midpoint       *segment.GeoPoint `json:"gps,omitempty"`
	AvgSpeedKmh    float64           `json:"avg_speed_kmh"`
	LengthKm       float64           `json:"length_km"`
	RoughnessIndex *float64          `json:"roughness_index,omitempty"`
	ConditionScore *float64          `json:"condition_score,omitempty"`
	Condition      string            `json:"condition,omitempty"`
	Distresses     []string          `json:"distresses,omitempty"`
	Stages         map[string]any    `json:"stages,omitempty"`
	ProcessingMs   float64           `json:"processing_ms"`
}

// Summary is the running per-session rollup kept by the pipeline while
// the session is live.
type Summary struct {
	SessionID         string          `json:"session_id"`
	SegmentsProcessed int             `json:"segments_processed"`
	TotalDistanceKm   float64         `json:"total_distance_km"`
	AvgRoughness      *float64        `json:"avg_roughness,omitempty"`
	AvgConditionScore *float64        `json:"avg_condition_score,omitempty"`
	Segments          []SegmentResult `json:"segments"`
}
