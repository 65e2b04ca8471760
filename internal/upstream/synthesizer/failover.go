package synthesizer

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailover builds a Synthesizer that prefers primary and sticks with
// fallback once it has taken over, mirroring transcriber.NewFailover.
func NewFailover(primary, fallback Synthesizer) Synthesizer {
	return &failoverSynthesizer{primary: primary, fallback: fallback}
}

type failoverSynthesizer struct {
	primary, fallback Synthesizer
	fallbackActive    atomic.Bool
}

func (f *failoverSynthesizer) Synthesize(ctx context.Context, voiceID, text string) (Stream, error) {
	if f.fallbackActive.Load() {
		s, fbErr := f.fallback.Synthesize(ctx, voiceID, text)
		if fbErr == nil {
			return s, nil
		}
		s, prErr := f.primary.Synthesize(ctx, voiceID, text)
		if prErr == nil {
			f.fallbackActive.Store(false)
			return s, nil
		}
		return nil, fmt.Errorf("fallback failed: %v; primary retry failed: %w", fbErr, prErr)
	}

	s, prErr := f.primary.Synthesize(ctx, voiceID, text)
	if prErr == nil {
		return s, nil
	}
	s, fbErr := f.fallback.Synthesize(ctx, voiceID, text)
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	f.fallbackActive.Store(true)
	return s, nil
}
