package segment_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/segment"
	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

// latStepM is roughly 0.00045 degrees of latitude: ~50m.
const latStep50m = 0.00045

func locationPacket(t *testing.T, lat, lon, speedMs float64, tsMs int64) telemetry.Packet {
	t.Helper()
	data, err := json.Marshal(telemetry.LocationSample{Lat: lat, Lon: lon, SpeedMs: speedMs, TimestampMs: tsMs})
	require.NoError(t, err)
	return telemetry.Packet{Type: telemetry.TypeLocation, Data: data}
}

func motionPacket(t *testing.T, accelZ float64) telemetry.Packet {
	t.Helper()
	data, err := json.Marshal(telemetry.MotionSample{AccelZ: accelZ})
	require.NoError(t, err)
	return telemetry.Packet{Type: telemetry.TypeMotion, Data: data}
}

func TestEmitsSegmentAtDistanceThreshold(t *testing.T) {
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{SegmentLengthM: 100})

	require.NoError(t, asm.IngestPacket(motionPacket(t, 9.8)))
	require.NoError(t, asm.IngestPacket(locationPacket(t, 0, 0, 10, 1000)))
	assert.Empty(t, asm.ReadySegments())

	require.NoError(t, asm.IngestPacket(locationPacket(t, latStep50m, 0, 10, 2000)))
	assert.Empty(t, asm.ReadySegments(), "50m traveled, below threshold")

	require.NoError(t, asm.IngestPacket(locationPacket(t, 2*latStep50m, 0, 14, 3000)))
	segs := asm.ReadySegments()
	require.Len(t, segs, 1)

	seg := segs[0]
	assert.Equal(t, "segment_000", seg.ID)
	assert.Equal(t, 0, seg.Index)
	assert.InDelta(t, 0.100, seg.LengthKm, 0.005)
	assert.Len(t, seg.Motion, 1)
	assert.Len(t, seg.Locations, 3)
	require.NotNil(t, seg.Midpoint)
	assert.InDelta(t, latStep50m, seg.Midpoint.Lat, 1e-9)
	assert.InDelta(t, (10+10+14)/3.0*3.6, seg.AvgSpeedKmh, 1e-9)
	assert.Equal(t, int64(1000), seg.Timestamp.UnixMilli())

	assert.Empty(t, asm.ReadySegments(), "ReadySegments drains")
}

func TestSegmentIndicesIncrease(t *testing.T) {
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{SegmentLengthM: 100})

	for i := 0; i <= 6; i++ {
		require.NoError(t, asm.IngestPacket(locationPacket(t, float64(i)*latStep50m, 0, 10, int64(i)*1000)))
	}

	segs := asm.ReadySegments()
	require.Len(t, segs, 3)
	assert.Equal(t, "segment_000", segs[0].ID)
	assert.Equal(t, "segment_001", segs[1].ID)
	assert.Equal(t, "segment_002", segs[2].ID)
	assert.Equal(t, 2, segs[2].Index)
}

func TestFlushClosesPartialSegment(t *testing.T) {
	// A 150m drive: one full segment at 100m, the trailing 50m comes
	// out on flush.
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{SegmentLengthM: 100})

	for i := 0; i <= 3; i++ {
		require.NoError(t, asm.IngestPacket(locationPacket(t, float64(i)*latStep50m, 0, 10, int64(i)*1000)))
	}
	segs := asm.ReadySegments()
	require.Len(t, segs, 1)
	assert.InDelta(t, 0.100, segs[0].LengthKm, 0.005)

	asm.Flush()
	segs = asm.ReadySegments()
	require.Len(t, segs, 1)
	assert.Equal(t, "segment_001", segs[0].ID)
	assert.InDelta(t, 0.050, segs[0].LengthKm, 0.005)
}

func TestFlushWithEmptyBuffersIsNoop(t *testing.T) {
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{})
	asm.Flush()
	assert.Empty(t, asm.ReadySegments())
}

func TestUnknownPacketTypeIgnored(t *testing.T) {
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{})
	err := asm.IngestPacket(telemetry.Packet{Type: "barometer", Data: json.RawMessage(`{"hpa": 1013}`)})
	require.NoError(t, err)
	asm.Flush()
	assert.Empty(t, asm.ReadySegments())
}

func TestMalformedPayloadIsFatal(t *testing.T) {
	asm := segment.NewDistanceAssembler(segment.DistanceConfig{})
	err := asm.IngestPacket(telemetry.Packet{Type: telemetry.TypeLocation, Data: json.RawMessage(`{"lat": "north"}`)})
	assert.Error(t, err)
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is close to 111.2 km everywhere.
	assert.InDelta(t, 111.2, segment.HaversineKm(0, 0, 1, 0), 0.2)
	assert.Zero(t, segment.HaversineKm(48.85, 2.35, 48.85, 2.35))
}
