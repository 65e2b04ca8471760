package transcriber

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailover builds a Transcriber that prefers primary and automatically
// switches to fallback when primary.Open fails. Once fallback succeeds it
// stays active (sticky) until fallback itself fails to open, at which point
// primary is retried. Wiring is a configuration choice; the Orchestrator
// only ever sees the Transcriber interface.
func NewFailover(primary, fallback Transcriber) Transcriber {
	return &failoverTranscriber{primary: primary, fallback: fallback}
}

type failoverTranscriber struct {
	primary, fallback Transcriber
	fallbackActive    atomic.Bool
}

func (f *failoverTranscriber) Open(ctx context.Context, language string, sampleRate int, cb Callbacks) (Handle, error) {
	if f.fallbackActive.Load() {
		h, fbErr := f.fallback.Open(ctx, language, sampleRate, cb)
		if fbErr == nil {
			return h, nil
		}
		h, prErr := f.primary.Open(ctx, language, sampleRate, cb)
		if prErr == nil {
			f.fallbackActive.Store(false)
			return h, nil
		}
		return nil, fmt.Errorf("fallback failed: %v; primary retry failed: %w", fbErr, prErr)
	}

	h, prErr := f.primary.Open(ctx, language, sampleRate, cb)
	if prErr == nil {
		return h, nil
	}
	h, fbErr := f.fallback.Open(ctx, language, sampleRate, cb)
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	f.fallbackActive.Store(true)
	return h, nil
}
