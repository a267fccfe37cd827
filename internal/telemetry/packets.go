package telemetry

import (
	"encoding/json"
	"fmt"
)

// Packet type discriminators sent by the recording client.
const (
	TypeLocation = "location"
	TypeMotion   = "motion"
	TypeFrame    = "frame"
	TypeAudio    = "audio"
)

// Packet is one inbound message on the ingestion socket. Data stays raw
// until the type is known; unrecognized types are forwarded to the
// assembler untouched so grouping policy stays external.
type Packet struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MotionSample is one IMU reading.
type MotionSample struct {
	AccelX      float64 `json:"accel_x"`
	AccelY      float64 `json:"accel_y"`
	AccelZ      float64 `json:"accel_z"`
	GyroX       float64 `json:"gyro_x"`
	GyroY       float64 `json:"gyro_y"`
	GyroZ       float64 `json:"gyro_z"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// LocationSample is one positional fix.
type LocationSample struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	SpeedMs     float64 `json:"speed_ms"`
	AccuracyM   float64 `json:"accuracy_m,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// FramePacket carries one camera frame as JPEG bytes (base64 on the wire).
type FramePacket struct {
	JPEG        []byte `json:"jpeg"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// AudioPacket carries one chunk of microphone audio.
type AudioPacket struct {
	PCM         []byte `json:"pcm"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ParsePacket decodes one wire message. A packet without a type
// discriminator is malformed; per the transport contract that ends the
// session's ingestion loop.
func ParsePacket(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("decode packet: %w", err)
	}
	if p.Type == "" {
		return Packet{}, fmt.Errorf("decode packet: missing type")
	}
	return p, nil
}

// Location decodes the payload of a location packet.
func (p Packet) Location() (LocationSample, error) {
	var s LocationSample
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return LocationSample{}, fmt.Errorf("decode location: %w", err)
	}
	return s, nil
}

// Motion decodes the payload of a motion packet.
func (p Packet) Motion() (MotionSample, error) {
	var s MotionSample
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return MotionSample{}, fmt.Errorf("decode motion: %w", err)
	}
	return s, nil
}

// Frame decodes the payload of a frame packet.
func (p Packet) Frame() (FramePacket, error) {
	var s FramePacket
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return FramePacket{}, fmt.Errorf("decode frame: %w", err)
	}
	return s, nil
}

// Audio decodes the payload of an audio packet.
func (p Packet) Audio() (AudioPacket, error) {
	var s AudioPacket
	if err := json.Unmarshal(p.Data, &s); err != nil {
		return AudioPacket{}, fmt.Errorf("decode audio: %w", err)
	}
	return s, nil
}
