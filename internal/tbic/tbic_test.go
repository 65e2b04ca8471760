package tbic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/internal/memory"
	"github.com/voxrelay/voxrelay/internal/upstream/synthesizer"
	"github.com/voxrelay/voxrelay/internal/upstream/transcriber"
)

type fakeResponder struct {
	delay time.Duration
	reply string
	err   error
}

func (f *fakeResponder) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type fakeSynthesizer struct{}

func (fakeSynthesizer) Synthesize(ctx context.Context, voiceID, text string) (synthesizer.Stream, error) {
	events := make(chan synthesizer.Event, 2)
	events <- synthesizer.Event{Type: synthesizer.EventAudio, Audio: []byte(text)}
	events <- synthesizer.Event{Type: synthesizer.EventFinal}
	close(events)
	return &fakeStream{events: events}, nil
}

type fakeStream struct{ events chan synthesizer.Event }

func (s *fakeStream) Events() <-chan synthesizer.Event { return s.events }
func (s *fakeStream) Close() error                     { return nil }

type recordingEmitter struct {
	mu           sync.Mutex
	interrupted  int
	responses    []string
	ttsAudio     []string
	unavailable  int
	responseErrs []string
}

func (r *recordingEmitter) Interrupted(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted++
}
func (r *recordingEmitter) AIResponse(response, _ string, _ float64, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response)
}
func (r *recordingEmitter) AIResponseError(message string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responseErrs = append(r.responseErrs, message)
}
func (r *recordingEmitter) TTSAudio(_ []byte, text string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttsAudio = append(r.ttsAudio, text)
}
func (r *recordingEmitter) TTSError(string, time.Time)       {}
func (r *recordingEmitter) TTSUnavailable(string, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable++
}

func (r *recordingEmitter) snapshot() recordingEmitter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingEmitter{
		interrupted: r.interrupted,
		responses:   append([]string(nil), r.responses...),
		ttsAudio:    append([]string(nil), r.ttsAudio...),
		unavailable: r.unavailable,
	}
}

func newTBIC(responder *fakeResponder, emit *recordingEmitter) *TBIC {
	return New(Config{
		UserID:      "u1",
		VoiceID:     "v1",
		Responder:   responder,
		Synthesizer: fakeSynthesizer{},
		Store:       memory.NewStore(),
		Emit:        emit,
	})
}

func TestFlushWithEmptyBufferIsNoop(t *testing.T) {
	emit := &recordingEmitter{}
	tb := newTBIC(&fakeResponder{reply: "hi"}, emit)
	tb.Flush()
	time.Sleep(20 * time.Millisecond)
	if s := emit.snapshot(); len(s.responses) != 0 {
		t.Fatalf("responses = %v, want none", s.responses)
	}
}

func TestFlushDrainsBufferAndRepliesAndSynthesizes(t *testing.T) {
	emit := &recordingEmitter{}
	tb := newTBIC(&fakeResponder{reply: "hello there"}, emit)
	tb.OnFinalFragment(transcriber.Fragment{Text: "hello", Confidence: 0.9})
	tb.Flush()

	deadline := time.After(time.Second)
	for {
		if s := emit.snapshot(); len(s.responses) == 1 && len(s.ttsAudio) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reply+tts, got %+v", emit.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBargeInCancelsLiveReplyAndEmitsInterrupted(t *testing.T) {
	emit := &recordingEmitter{}
	tb := newTBIC(&fakeResponder{delay: 300 * time.Millisecond, reply: "slow reply"}, emit)

	tb.OnFinalFragment(transcriber.Fragment{Text: "first", Confidence: 0.9})
	tb.Flush()
	time.Sleep(20 * time.Millisecond) // let the reply task actually launch

	tb.OnFinalFragment(transcriber.Fragment{Text: "second", Confidence: 0.9})

	if s := emit.snapshot(); s.interrupted != 1 {
		t.Fatalf("interrupted = %d, want 1", s.interrupted)
	}

	time.Sleep(400 * time.Millisecond)
	if s := emit.snapshot(); len(s.responses) != 0 {
		t.Fatalf("late reply was not discarded: %v", s.responses)
	}
}

func TestLowConfidenceFragmentIsDropped(t *testing.T) {
	emit := &recordingEmitter{}
	tb := New(Config{
		UserID:        "u1",
		Responder:     &fakeResponder{reply: "hi"},
		Synthesizer:   fakeSynthesizer{},
		Store:         memory.NewStore(),
		Emit:          emit,
		MinConfidence: 0.5,
	})
	tb.OnFinalFragment(transcriber.Fragment{Text: "quiet", Confidence: 0.1})
	if tb.BufferLen() != 0 {
		t.Fatalf("buffer len = %d, want 0 for sub-threshold confidence", tb.BufferLen())
	}
}

func TestSynthUnavailableEmitsOnce(t *testing.T) {
	emit := &recordingEmitter{}
	tb := New(Config{
		UserID:      "u1",
		Responder:   &fakeResponder{reply: "hi"},
		Synthesizer: unavailableSynth{},
		Store:       memory.NewStore(),
		Emit:        emit,
	})
	tb.OnFinalFragment(transcriber.Fragment{Text: "hello", Confidence: 0.9})
	tb.Flush()

	deadline := time.After(time.Second)
	for {
		if s := emit.snapshot(); s.unavailable == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for tts-unavailable, got %+v", emit.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type unavailableSynth struct{}

func (unavailableSynth) Synthesize(context.Context, string, string) (synthesizer.Stream, error) {
	return nil, synthesizer.ErrUnavailable
}
