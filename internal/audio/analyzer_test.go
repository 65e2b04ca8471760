package audio

import "testing"

func TestAnalyzeEmptyFrame(t *testing.T) {
	result := Analyze(Frame{})
	if result.Volume != 0 || result.VoiceActive {
		t.Fatalf("empty frame = %+v, want zero volume and no voice", result)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	samples := make([]int16, 320)
	result := Analyze(Frame{Samples: samples, SampleRate: 16000})
	if result.Volume != 0 || result.VoiceActive {
		t.Fatalf("silent frame = %+v, want zero volume and no voice", result)
	}
}

func TestAnalyzeLoudFrameIsVoiceActive(t *testing.T) {
	samples := make([]int16, 320)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 12000
		} else {
			samples[i] = -12000
		}
	}
	result := Analyze(Frame{Samples: samples, SampleRate: 16000})
	if !result.VoiceActive {
		t.Fatalf("loud frame voice-active = false, want true (volume=%d)", result.Volume)
	}
	if result.Volume <= voiceActiveThreshold {
		t.Fatalf("loud frame volume = %d, want > %d", result.Volume, voiceActiveThreshold)
	}
}

func TestAnalyzeVolumeClamped(t *testing.T) {
	samples := make([]int16, 8)
	for i := range samples {
		samples[i] = 32767
	}
	result := Analyze(Frame{Samples: samples})
	if result.Volume > 100 {
		t.Fatalf("volume = %d, want <= 100", result.Volume)
	}
}
