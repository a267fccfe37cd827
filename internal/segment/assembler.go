package segment

import (
	"fmt"
	"time"

	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

// Assembler groups raw sensor packets into fixed-distance segments.
// Implementations are driven by a single ingestion loop; they are not
// safe for concurrent use.
type Assembler interface {
	// IngestPacket consumes one packet in arrival order. A payload that
	// fails to decode is a transport error and terminates the session.
	IngestPacket(p telemetry.Packet) error
	// ReadySegments drains and returns segments completed since the
	// previous call. May return several after a burst of packets.
	ReadySegments() []*Segment
	// Flush force-closes any partially filled segment so a drive
	// shorter than one full segment still produces a result.
	Flush()
}

// DistanceConfig controls distance-based segment assembly.
type DistanceConfig struct {
	SegmentLengthM float64
}

// DefaultDistanceConfig returns the production segment length.
func DefaultDistanceConfig() DistanceConfig {
	return DistanceConfig{SegmentLengthM: 100}
}

// DistanceAssembler buffers sensor packets and emits a segment each
// time the traversed distance reaches the configured length.
type DistanceAssembler struct {
	cfg DistanceConfig

	motion    []telemetry.MotionSample
	frames    [][]byte
	locations []telemetry.LocationSample
	audio     []telemetry.AudioPacket

	distanceM float64
	lastLoc   *telemetry.LocationSample
	nextIndex int
	ready     []*Segment
}

// NewDistanceAssembler creates an assembler with the given config.
func NewDistanceAssembler(cfg DistanceConfig) *DistanceAssembler {
	if cfg.SegmentLengthM <= 0 {
		cfg.SegmentLengthM = DefaultDistanceConfig().SegmentLengthM
	}
	return &DistanceAssembler{cfg: cfg}
}

func (a *DistanceAssembler) IngestPacket(p telemetry.Packet) error {
	switch p.Type {
	case telemetry.TypeMotion:
		s, err := p.Motion()
		if err != nil {
			return err
		}
		a.motion = append(a.motion, s)

	case telemetry.TypeLocation:
		s, err := p.Location()
		if err != nil {
			return err
		}
		if a.lastLoc != nil {
			a.distanceM += HaversineKm(a.lastLoc.Lat, a.lastLoc.Lon, s.Lat, s.Lon) * 1000
		}
		loc := s
		a.lastLoc = &loc
		a.locations = append(a.locations, s)
		if a.distanceM >= a.cfg.SegmentLengthM {
			a.closeSegment()
		}

	case telemetry.TypeFrame:
		s, err := p.Frame()
		if err != nil {
			return err
		}
		a.frames = append(a.frames, s.JPEG)

	case telemetry.TypeAudio:
		s, err := p.Audio()
		if err != nil {
			return err
		}
		a.audio = append(a.audio, s)

	default:
		// Unknown packet types are ignored, not fatal: newer clients may
		// send packet kinds this build does not group.
	}
	return nil
}

func (a *DistanceAssembler) ReadySegments() []*Segment {
	out := a.ready
	a.ready = nil
	return out
}

func (a *DistanceAssembler) Flush() {
	if a.empty() {
		return
	}
	a.closeSegment()
}

func (a *DistanceAssembler) empty() bool {
	return len(a.motion) == 0 && len(a.frames) == 0 &&
		len(a.locations) == 0 && len(a.audio) == 0
}

// closeSegment snapshots the current buffers into a Segment, stages it
// for ReadySegments, and resets accumulation. The last location carries
// over so distance keeps accruing across the segment boundary.
func (a *DistanceAssembler) closeSegment() {
	seg := &Segment{
		ID:        fmt.Sprintf("segment_%03d", a.nextIndex),
		Index:     a.nextIndex,
		Timestamp: time.Now().UTC(),
		LengthKm:  a.distanceM / 1000,
		Motion:    a.motion,
		Frames:    a.frames,
		Locations: a.locations,
		Audio:     a.audio,
	}

	if n := len(a.locations); n > 0 {
		mid := a.locations[n/2]
		seg.Midpoint = &GeoPoint{Lat: mid.Lat, Lon: mid.Lon}
		seg.Timestamp = time.UnixMilli(a.locations[0].TimestampMs).UTC()

		var sum float64
		for _, l := range a.locations {
			sum += l.SpeedMs
		}
		seg.AvgSpeedMs = sum / float64(n)
		seg.AvgSpeedKmh = seg.AvgSpeedMs * 3.6
	}

	a.nextIndex++
	a.ready = append(a.ready, seg)

	a.motion = nil
	a.frames = nil
	a.locations = nil
	a.audio = nil
	a.distanceM = 0
}
