package synthesizer

import (
	"context"
	"testing"
)

func TestMockSynthesizeEmitsAudioThenFinal(t *testing.T) {
	m := NewMock()
	stream, err := m.Synthesize(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var types []EventType
	for ev := range stream.Events() {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != EventAudio || types[1] != EventFinal {
		t.Fatalf("events = %v, want [audio final]", types)
	}
}

func TestFailoverSynthesizerSwitchesOnPrimaryFailure(t *testing.T) {
	primary := failingSynth{}
	fallback := NewMock()
	f := NewFailover(primary, fallback)

	stream, err := f.Synthesize(context.Background(), "v1", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stream == nil {
		t.Fatal("expected non-nil stream from fallback")
	}
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, string, string) (Stream, error) {
	return nil, ErrUnavailable
}
