package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

func TestParsePacket(t *testing.T) {
	pkt, err := telemetry.ParsePacket([]byte(`{"type":"motion","data":{"accel_z":9.81,"timestamp_ms":42}}`))
	require.NoError(t, err)
	assert.Equal(t, telemetry.TypeMotion, pkt.Type)

	m, err := pkt.Motion()
	require.NoError(t, err)
	assert.Equal(t, 9.81, m.AccelZ)
	assert.Equal(t, int64(42), m.TimestampMs)
}

func TestParsePacketMissingType(t *testing.T) {
	_, err := telemetry.ParsePacket([]byte(`{"data":{"lat":1}}`))
	assert.ErrorContains(t, err, "missing type")
}

func TestParsePacketBadJSON(t *testing.T) {
	_, err := telemetry.ParsePacket([]byte(`{"type": "loc`))
	assert.Error(t, err)
}

func TestFramePayloadDecodesBase64(t *testing.T) {
	// "jpeg" carries standard-encoding base64 of the raw bytes.
	pkt, err := telemetry.ParsePacket([]byte(`{"type":"frame","data":{"jpeg":"aGVsbG8=","width":640,"height":480}}`))
	require.NoError(t, err)

	f, err := pkt.Frame()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), f.JPEG)
	assert.Equal(t, 640, f.Width)
	assert.Equal(t, 480, f.Height)
}

func TestLocationPayload(t *testing.T) {
	pkt, err := telemetry.ParsePacket([]byte(`{"type":"location","data":{"lat":59.33,"lon":18.07,"speed_ms":13.9,"timestamp_ms":1700000000000}}`))
	require.NoError(t, err)

	l, err := pkt.Location()
	require.NoError(t, err)
	assert.Equal(t, 59.33, l.Lat)
	assert.Equal(t, 13.9, l.SpeedMs)
}

func TestAudioPayload(t *testing.T) {
	pkt, err := telemetry.ParsePacket([]byte(`{"type":"audio","data":{"pcm":"AAAA","sample_rate":16000}}`))
	require.NoError(t, err)

	a, err := pkt.Audio()
	require.NoError(t, err)
	assert.Equal(t, 16000, a.SampleRate)
	assert.Len(t, a.PCM, 3)
}
