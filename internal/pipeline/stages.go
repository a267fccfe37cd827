package pipeline

import (
	"encoding/binary"
	"math"

	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

// The motion, depth, and acoustic stages below are reference estimators:
// cheap signal statistics standing in for the model-backed analysis
// components, behind the same stage contract and capture points.

// computeRoughness derives a roughness index from vertical-acceleration
// variance, normalized by travel speed so a rough road read at 20 km/h
// and at 60 km/h lands in the same band.
func computeRoughness(motion []telemetry.MotionSample, avgSpeedMs float64) RoughnessResult {
	out := RoughnessResult{
		SampleCount: len(motion),
		AvgSpeedKmh: avgSpeedMs * 3.6,
	}
	if len(motion) == 0 {
		return out
	}

	var mean float64
	for _, m := range motion {
		mean += m.AccelZ
	}
	mean /= float64(len(motion))

	var sum float64
	for _, m := range motion {
		d := m.AccelZ - mean
		sum += d * d
	}
	rms := math.Sqrt(sum / float64(len(motion)))
	out.RMSAccelMs2 = rms

	speed := avgSpeedMs
	if speed < 1 {
		speed = 1
	}
	iri := rms / speed * 10 // m/km
	out.IRI = &iri
	return out
}

// estimateDepth bounds surface deviation from acceleration peaks. A
// calibrated monocular depth model would replace this; the stage shape
// and capture stay the same.
func estimateDepth(motion []telemetry.MotionSample, frameCount int) DepthResult {
	out := DepthResult{
		FrameCount: frameCount,
		Method:     "imu_peak_proxy",
	}
	if len(motion) == 0 {
		return out
	}

	var mean float64
	for _, m := range motion {
		mean += m.AccelZ
	}
	mean /= float64(len(motion))

	var peak, sumAbs float64
	for _, m := range motion {
		d := math.Abs(m.AccelZ - mean)
		sumAbs += d
		if d > peak {
			peak = d
		}
	}

	const gravity = 9.81
	maxDev := peak / gravity * 10 // cm
	meanDev := sumAbs / float64(len(motion)) / gravity * 10
	out.MaxDeviationCm = &maxDev
	out.MeanDeviationCm = &meanDev
	return out
}

// classifyAcoustic labels tire/road noise by mean PCM amplitude.
func classifyAcoustic(audio []telemetry.AudioPacket) AcousticResult {
	out := AcousticResult{Label: "no_audio", PacketCount: len(audio)}
	if len(audio) == 0 {
		return out
	}

	var sum float64
	var n int
	for _, pkt := range audio {
		for i := 0; i+1 < len(pkt.PCM); i += 2 {
			s := int16(binary.LittleEndian.Uint16(pkt.PCM[i:]))
			sum += math.Abs(float64(s))
			n++
		}
	}
	if n == 0 {
		return out
	}

	energy := sum / float64(n) / math.MaxInt16
	switch {
	case energy < 0.02:
		out.Label = "smooth_rolling"
	case energy < 0.1:
		out.Label = "coarse_surface"
	default:
		out.Label = "impact_noise"
	}
	out.Confidence = math.Min(1, 0.5+energy*2)
	return out
}

// fuse merges the stage outputs into the segment verdict. The vision
// assessment wins where present; motion-derived values fill the gaps.
// Fields no stage could supply stay nil rather than defaulting to zero.
func fuse(a Assessment, rough RoughnessResult, acoustic AcousticResult) FusionResult {
	out := FusionResult{
		RoughnessIndex: rough.IRI,
		Distresses:     a.Distresses,
	}

	if rough.IRI != nil {
		out.Sources = append(out.Sources, "iri")
	}

	if a.ParseOK() {
		out.ConditionScore = a.ConditionScore
		if a.Condition != nil {
			out.Condition = *a.Condition
		}
		out.Sources = append(out.Sources, "vlm")
	}

	if out.ConditionScore == nil && rough.IRI != nil {
		score := math.Max(0, math.Min(1, 1-*rough.IRI/10))
		out.ConditionScore = &score
		out.Sources = append(out.Sources, "iri_fallback")
	}
	if out.Condition == "" && out.ConditionScore != nil {
		out.Condition = conditionBand(*out.ConditionScore)
	}

	if acoustic.Label == "impact_noise" {
		out.Distresses = appendUnique(out.Distresses, "impact_noise")
		out.Sources = append(out.Sources, "acoustic")
	}
	return out
}

func conditionBand(score float64) string {
	switch {
	case score >= 0.75:
		return "good"
	case score >= 0.5:
		return "fair"
	case score >= 0.25:
		return "poor"
	default:
		return "very_poor"
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
