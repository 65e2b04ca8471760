package audio

import "math"

// Frame is one contiguous block of PCM samples captured from a session at a
// single instant.
type Frame struct {
	TimestampMs int64
	Samples     []int16
	SampleRate  int
	Channels    int
}

// AnalysisResult is the outcome of running the analyzer over a Frame.
type AnalysisResult struct {
	Volume      int
	VoiceActive bool
}

// voiceActiveThreshold is fixed; calibration is out of scope.
const voiceActiveThreshold = 5

// fullScale16 is the maximum magnitude of a signed 16-bit sample.
const fullScale16 = 32768.0

// Analyze computes volume and a voice/silence classification for a frame.
// It is a pure function: no state, no I/O, no failure mode beyond an empty
// frame, which yields volume 0 and voice-active false.
func Analyze(frame Frame) AnalysisResult {
	if len(frame.Samples) == 0 {
		return AnalysisResult{Volume: 0, VoiceActive: false}
	}

	var sumSquares float64
	for _, s := range frame.Samples {
		v := float64(s)
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(frame.Samples)))
	volume := int(math.Round((rms / fullScale16) * 100))
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	return AnalysisResult{
		Volume:      volume,
		VoiceActive: volume > voiceActiveThreshold,
	}
}
