package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/internal/memory"
	"github.com/voxrelay/voxrelay/internal/observability"
	"github.com/voxrelay/voxrelay/internal/protocol"
	"github.com/voxrelay/voxrelay/internal/session"
	respmock "github.com/voxrelay/voxrelay/internal/upstream/responder"
	synthmock "github.com/voxrelay/voxrelay/internal/upstream/synthesizer"
	"github.com/voxrelay/voxrelay/internal/upstream/transcriber"
)

// fakeTranscriber delivers one final fragment shortly after Open, letting
// tests drive a full transcription-result -> ai-response -> tts-audio chain
// without waiting on real upstream timing.
type fakeTranscriber struct {
	mu     sync.Mutex
	opened int
	text   string
}

func (f *fakeTranscriber) Open(ctx context.Context, language string, sampleRate int, cb transcriber.Callbacks) (transcriber.Handle, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	go func() {
		cb.OnFragment(transcriber.Fragment{Text: f.text, Confidence: 1, IsPartial: false, Timestamp: time.Now()})
	}()
	return &fakeHandle{}, nil
}

type fakeHandle struct{}

func (*fakeHandle) Push([]byte) bool { return true }
func (*fakeHandle) Close() error     { return nil }

func loudFrame(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 20000
	}
	return samples
}

// metricsSeq gives each test orchestrator its own metrics namespace, since
// observability.NewMetrics registers on the process-global registry.
var metricsSeq atomic.Int64

func newTestOrchestrator(t *testing.T, tr transcriber.Transcriber) (*Orchestrator, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(time.Minute)
	o := New(Config{
		Sessions:    sessions,
		Store:       memory.NewStore(),
		Audit:       memory.NoopAuditSink{},
		Transcriber: tr,
		Responder:   respmock.Mock{},
		Synthesizer: synthmock.NewMock(),
		Metrics:     observability.NewMetrics(fmt.Sprintf("orchestrator_test_%d", metricsSeq.Add(1))),
		VoiceID:     "test-voice",
	})
	return o, sessions
}

func drainUntil(t *testing.T, events <-chan any, want protocol.EventType, timeout time.Duration) any {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if typed, ok := eventType(ev); ok && typed == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

func eventType(ev any) (protocol.EventType, bool) {
	switch m := ev.(type) {
	case protocol.Ready:
		return m.Type, true
	case protocol.SessionCreated:
		return m.Type, true
	case protocol.ProcessingStarted:
		return m.Type, true
	case protocol.ProcessingStopped:
		return m.Type, true
	case protocol.TranscriptionResult:
		return m.Type, true
	case protocol.AIResponse:
		return m.Type, true
	case protocol.TTSAudio:
		return m.Type, true
	case protocol.ConversationHistory:
		return m.Type, true
	case protocol.ConversationCleared:
		return m.Type, true
	case protocol.ConversationStats:
		return m.Type, true
	case protocol.Error:
		return m.Type, true
	}
	return "", false
}

func TestRunConnectionHappyPathTranscribeReplyAndSynthesize(t *testing.T) {
	tr := &fakeTranscriber{text: "hello there"}
	o, _ := newTestOrchestrator(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan any, 16)
	outbound := make(chan any, 64)

	done := make(chan error, 1)
	go func() { done <- o.RunConnection(ctx, inbound, outbound) }()

	drainUntil(t, outbound, protocol.TypeReady, time.Second)

	inbound <- protocol.StartSession{Type: protocol.TypeStartSession, UserID: "user-1"}
	created := drainUntil(t, outbound, protocol.TypeSessionCreated, time.Second).(protocol.SessionCreated)
	if created.SessionID == "" {
		t.Fatal("expected non-empty sessionId")
	}

	inbound <- protocol.StartProcessing{Type: protocol.TypeStartProcessing, SessionID: created.SessionID}
	drainUntil(t, outbound, protocol.TypeProcessingStarted, time.Second)

	samples := loudFrame(320)
	for i := 0; i < 3; i++ {
		inbound <- protocol.AudioData{Type: protocol.TypeAudioData, SessionID: created.SessionID, Samples: samples, SampleRate: 16000, Channels: 1}
	}

	drainUntil(t, outbound, protocol.TypeTranscriptionResult, time.Second)

	inbound <- protocol.StopProcessing{Type: protocol.TypeStopProcessing, SessionID: created.SessionID}
	drainUntil(t, outbound, protocol.TypeProcessingStopped, time.Second)

	ai := drainUntil(t, outbound, protocol.TypeAIResponse, 2*time.Second).(protocol.AIResponse)
	if ai.Transcript != "hello there" {
		t.Fatalf("AIResponse.Transcript = %q, want %q", ai.Transcript, "hello there")
	}

	drainUntil(t, outbound, protocol.TypeTTSAudio, 2*time.Second)

	if tr.opened != 1 {
		t.Fatalf("transcriber opened %d times, want 1", tr.opened)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunConnection did not return after ctx cancellation")
	}
}

func TestRunConnectionRejectsStartProcessingForUnknownSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeTranscriber{text: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan any, 4)
	outbound := make(chan any, 16)

	go func() { _ = o.RunConnection(ctx, inbound, outbound) }()
	drainUntil(t, outbound, protocol.TypeReady, time.Second)

	inbound <- protocol.StartProcessing{Type: protocol.TypeStartProcessing, SessionID: "session_bogus"}
	ev := drainUntil(t, outbound, protocol.TypeError, time.Second).(protocol.Error)
	if ev.Message == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestRunConnectionConversationHistoryRoundTrip(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeTranscriber{text: "irrelevant"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan any, 8)
	outbound := make(chan any, 32)

	go func() { _ = o.RunConnection(ctx, inbound, outbound) }()
	drainUntil(t, outbound, protocol.TypeReady, time.Second)

	inbound <- protocol.StartSession{Type: protocol.TypeStartSession, UserID: "user-2"}
	created := drainUntil(t, outbound, protocol.TypeSessionCreated, time.Second).(protocol.SessionCreated)

	o.cfg.Store.Append(created.SessionID, memory.RoleUser, "placeholder") // wrong key, ensures isolation
	o.cfg.Store.Append("user-2", memory.RoleUser, "hi")
	o.cfg.Store.Append("user-2", memory.RoleAssistant, "hello")

	inbound <- protocol.GetConversationHistory{Type: protocol.TypeGetConversationHistory}
	hist := drainUntil(t, outbound, protocol.TypeConversationHistory, time.Second).(protocol.ConversationHistory)
	if len(hist.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist.History))
	}

	inbound <- protocol.ClearConversation{Type: protocol.TypeClearConversation}
	drainUntil(t, outbound, protocol.TypeConversationCleared, time.Second)

	inbound <- protocol.GetConversationStats{Type: protocol.TypeGetConversationStats}
	stats := drainUntil(t, outbound, protocol.TypeConversationStats, time.Second).(protocol.ConversationStats)
	if stats.TotalTurns != 1 { // the placeholder conversation under created.SessionID remains
		t.Fatalf("TotalTurns = %d, want 1", stats.TotalTurns)
	}
}
