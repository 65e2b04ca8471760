// Package tbic implements the Turn Buffer & Interruption Controller: it
// accumulates final transcript fragments into a turn, fires reply
// generation on an inactivity timer, and cancels any live reply/synthesis
// on a fresh final fragment (barge-in).
package tbic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/memory"
	"github.com/voxrelay/voxrelay/internal/observability"
	"github.com/voxrelay/voxrelay/internal/upstream/responder"
	"github.com/voxrelay/voxrelay/internal/upstream/synthesizer"
	"github.com/voxrelay/voxrelay/internal/upstream/transcriber"
)

const (
	inactivityTimeout = 2000 * time.Millisecond
	promptWindow      = memory.DefaultPromptWindow
	systemPreamble    = "You are a helpful, concise voice assistant. Keep replies short and conversational."
)

// Emitter is the transport sink the TBIC reports to. Every method must be
// safe to call from arbitrary goroutines.
type Emitter interface {
	Interrupted(ts time.Time)
	AIResponse(response, transcript string, confidence float64, ts time.Time)
	AIResponseError(message string, ts time.Time)
	TTSAudio(audio []byte, text string, ts time.Time)
	TTSError(message string, ts time.Time)
	TTSUnavailable(message string, ts time.Time)
}

// Config wires a TBIC to one session's collaborators.
type Config struct {
	UserID        string
	SessionID     string
	VoiceID       string
	Responder     responder.Responder
	Synthesizer   synthesizer.Synthesizer
	Store         *memory.Store
	Audit         memory.AuditSink // best-effort mirror of Store appends; never read back
	Emit          Emitter
	Metrics       *observability.Metrics
	MinConfidence float64 // resolves the confidence>=0 open question; default 0
	Now           func() time.Time
}

// recordAudit mirrors a Store append into the audit sink, if configured. It
// never blocks the orchestration path; PostgresAuditSink.Record is itself
// fire-and-forget.
func (t *TBIC) recordAudit(ctx context.Context, role memory.Role, content string) {
	if t.cfg.Audit == nil {
		return
	}
	t.cfg.Audit.Record(ctx, memory.AuditRecord{
		UserID:    t.cfg.UserID,
		SessionID: t.cfg.SessionID,
		Role:      role,
		Content:   content,
	})
}

// TBIC owns one session's turn buffer, inactivity timer, and the
// cancellation state of its live ReplyTask/SynthTask.
type TBIC struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	buffer []transcriber.Fragment

	timer      *time.Timer
	timerToken int64

	nextToken   int64
	replyCancel context.CancelFunc
	replyToken  int64
	synthCancel context.CancelFunc
	synthLive   bool
}

func New(cfg Config) *TBIC {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TBIC{cfg: cfg, now: now}
}

// OnFinalFragment is called for each final fragment with non-empty text.
// Per §4.4 the controller serializes cancel -> buffer-append -> timer-reset.
func (t *TBIC) OnFinalFragment(frag transcriber.Fragment) {
	if strings.TrimSpace(frag.Text) == "" {
		return
	}
	if frag.Confidence < t.cfg.MinConfidence {
		return
	}

	t.mu.Lock()
	wasLive := t.cancelLiveLocked()
	t.buffer = append(t.buffer, frag)
	t.armTimerLocked()
	t.mu.Unlock()

	if wasLive && t.cfg.Emit != nil {
		t.cfg.Emit.Interrupted(t.now())
	}
}

// cancelLiveLocked cancels any live ReplyTask/SynthTask. Must be called
// with mu held.
func (t *TBIC) cancelLiveLocked() bool {
	wasLive := false
	if t.replyCancel != nil {
		t.replyCancel()
		t.replyCancel = nil
		wasLive = true
	}
	if t.synthCancel != nil {
		t.synthCancel()
		t.synthCancel = nil
		t.synthLive = false
		wasLive = true
	}
	return wasLive
}

func (t *TBIC) armTimerLocked() {
	t.timerToken++
	token := t.timerToken
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(inactivityTimeout, func() {
		t.onInactivityTimeout(token)
	})
}

func (t *TBIC) cancelTimerLocked() {
	t.timerToken++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *TBIC) onInactivityTimeout(token int64) {
	t.mu.Lock()
	if token != t.timerToken {
		t.mu.Unlock()
		return
	}
	t.drainAndLaunchLocked()
	t.mu.Unlock()
}

// Flush forces immediate reply generation from any buffered fragments,
// bypassing the inactivity timer. Used on stop-processing and VAT-driven
// STOP_TRANSCRIPTION.
func (t *TBIC) Flush() {
	t.mu.Lock()
	t.cancelTimerLocked()
	t.drainAndLaunchLocked()
	t.mu.Unlock()
}

// drainAndLaunchLocked must be called with mu held. If the buffer is empty
// it is a no-op. Otherwise it atomically drains the buffer, appends a user
// Turn to the Conversation, and launches a ReplyTask.
func (t *TBIC) drainAndLaunchLocked() {
	if len(t.buffer) == 0 {
		return
	}

	var texts []string
	var confidenceSum float64
	for _, f := range t.buffer {
		trimmed := strings.TrimSpace(f.Text)
		if trimmed != "" {
			texts = append(texts, trimmed)
		}
		confidenceSum += f.Confidence
	}
	meanConfidence := confidenceSum / float64(len(t.buffer))
	t.buffer = nil

	text := strings.Join(texts, " ")
	if strings.TrimSpace(text) == "" {
		return
	}

	t.cfg.Store.Append(t.cfg.UserID, memory.RoleUser, text)
	t.recordAudit(context.Background(), memory.RoleUser, text)

	t.nextToken++
	token := t.nextToken
	ctx, cancel := context.WithCancel(context.Background())
	t.replyCancel = cancel
	t.replyToken = token

	turnStart := t.now()
	go t.runReplyTask(ctx, token, text, meanConfidence, turnStart)
}

func (t *TBIC) buildPrompt(userText string) string {
	window := t.cfg.Store.Window(t.cfg.UserID, promptWindow)
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")
	for _, turn := range window {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&b, "user: %s\n", userText)
	return b.String()
}

func (t *TBIC) runReplyTask(ctx context.Context, token int64, userText string, confidence float64, turnStart time.Time) {
	prompt := t.buildPrompt(userText)
	reply, err := t.cfg.Responder.Complete(ctx, prompt)

	// The reply-complete check, the synth-live check, and launching the
	// SynthTask happen under one critical section so a barge-in arriving in
	// between can never observe both cancel handles as nil while this
	// ReplyTask is still in the process of handing off to synthesis.
	t.mu.Lock()
	isCurrent := t.replyToken == token && t.replyCancel != nil
	var synthCtx context.Context
	launchSynth := false
	if isCurrent {
		t.replyCancel = nil
		if err == nil && !t.synthLive {
			var cancel context.CancelFunc
			synthCtx, cancel = context.WithCancel(context.Background())
			t.synthCancel = cancel
			t.synthLive = true
			launchSynth = true
		}
	}
	t.mu.Unlock()

	if !isCurrent {
		// Cancelled (barge-in) or superseded: discard, no Conversation
		// mutation, no transport emission, even on a late success.
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if t.cfg.Emit != nil {
			t.cfg.Emit.AIResponseError(fmt.Sprintf("reply generation failed: %v", err), t.now())
		}
		return
	}

	t.cfg.Store.Append(t.cfg.UserID, memory.RoleAssistant, reply)
	t.recordAudit(context.Background(), memory.RoleAssistant, reply)
	ts := t.now()
	if t.cfg.Emit != nil {
		t.cfg.Emit.AIResponse(reply, userText, confidence, ts)
	}

	if launchSynth {
		go t.runSynthTask(synthCtx, reply, turnStart)
	}
}

func (t *TBIC) runSynthTask(ctx context.Context, text string, turnStart time.Time) {
	defer func() {
		t.mu.Lock()
		t.synthLive = false
		t.synthCancel = nil
		t.mu.Unlock()
	}()

	stream, err := t.cfg.Synthesizer.Synthesize(ctx, t.cfg.VoiceID, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, synthesizer.ErrUnavailable) {
			if t.cfg.Emit != nil {
				t.cfg.Emit.TTSUnavailable("speech synthesis is not configured", t.now())
			}
			return
		}
		if t.cfg.Emit != nil {
			t.cfg.Emit.TTSError(fmt.Sprintf("speech synthesis failed: %v", err), t.now())
		}
		return
	}
	defer stream.Close()

	var audio []byte
	firstAudioObserved := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case synthesizer.EventAudio:
				if !firstAudioObserved {
					firstAudioObserved = true
					if t.cfg.Metrics != nil {
						t.cfg.Metrics.ObserveFirstAudioLatency(t.now().Sub(turnStart))
					}
				}
				audio = append(audio, ev.Audio...)
			case synthesizer.EventError:
				if t.cfg.Emit != nil {
					t.cfg.Emit.TTSError(fmt.Sprintf("speech synthesis failed: %v", ev.Err), t.now())
				}
				return
			case synthesizer.EventFinal:
				if ctx.Err() != nil {
					return
				}
				if t.cfg.Emit != nil {
					t.cfg.Emit.TTSAudio(audio, text, t.now())
				}
				return
			}
		}
	}
}

// Shutdown cancels any live reply/synth task and clears pending state. Used
// on transport close or explicit session teardown.
func (t *TBIC) Shutdown() {
	t.mu.Lock()
	t.cancelTimerLocked()
	t.cancelLiveLocked()
	t.buffer = nil
	t.mu.Unlock()
}

// BufferLen reports the number of fragments currently buffered, for tests
// and observability.
func (t *TBIC) BufferLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}
