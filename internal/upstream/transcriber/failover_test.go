package transcriber

import (
	"context"
	"errors"
	"testing"
)

type stubTranscriber struct {
	fail bool
}

func (s *stubTranscriber) Open(context.Context, string, int, Callbacks) (Handle, error) {
	if s.fail {
		return nil, errors.New("boom")
	}
	return &mockHandle{}, nil
}

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubTranscriber{}
	fallback := &stubTranscriber{fail: true}
	f := NewFailover(primary, fallback)

	if _, err := f.Open(context.Background(), "en-US", 16000, Callbacks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFailoverSwitchesAndStaysSticky(t *testing.T) {
	primary := &stubTranscriber{fail: true}
	fallback := &stubTranscriber{}
	f := NewFailover(primary, fallback)

	if _, err := f.Open(context.Background(), "en-US", 16000, Callbacks{}); err != nil {
		t.Fatalf("first open: unexpected error: %v", err)
	}

	// Primary recovering shouldn't matter; fallback stays sticky.
	primary.fail = false
	ft := f.(*failoverTranscriber)
	if !ft.fallbackActive.Load() {
		t.Fatal("fallback should be sticky-active after switching")
	}
}

func TestFailoverReturnsErrorWhenBothFail(t *testing.T) {
	f := NewFailover(&stubTranscriber{fail: true}, &stubTranscriber{fail: true})
	if _, err := f.Open(context.Background(), "en-US", 16000, Callbacks{}); err == nil {
		t.Fatal("expected error when both backends fail")
	}
}
