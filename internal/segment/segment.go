package segment

import (
	"time"

	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Segment is one fixed-distance slice of a drive's sensor stream, the
// unit of analysis. Immutable once handed to a segment task.
type Segment struct {
	ID        string    `json:"segment_id"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`

	Midpoint    *GeoPoint `json:"gps,omitempty"`
	AvgSpeedMs  float64   `json:"avg_speed_ms"`
	AvgSpeedKmh float64   `json:"avg_speed_kmh"`
	LengthKm    float64   `json:"length_km"`

	Motion    []telemetry.MotionSample   `json:"-"`
	Frames    [][]byte                   `json:"-"`
	Locations []telemetry.LocationSample `json:"-"`
	Audio     []telemetry.AudioPacket    `json:"-"`
}
