// Package orchestrator implements the Session Orchestrator: it owns one
// connected client's lifecycle end to end, wiring the Audio Analyzer, Voice
// Activity Tracker, Transcriber, and Turn Buffer & Interruption Controller
// together behind a single serialized per-connection loop.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/voxrelay/voxrelay/internal/audio"
	"github.com/voxrelay/voxrelay/internal/memory"
	"github.com/voxrelay/voxrelay/internal/observability"
	"github.com/voxrelay/voxrelay/internal/protocol"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/tbic"
	"github.com/voxrelay/voxrelay/internal/upstream/responder"
	"github.com/voxrelay/voxrelay/internal/upstream/synthesizer"
	"github.com/voxrelay/voxrelay/internal/upstream/transcriber"
	"github.com/voxrelay/voxrelay/internal/vat"
)

const defaultSampleRate = 16000

// Config wires an Orchestrator to its process-wide collaborators. One
// Orchestrator instance drives every connection; per-connection state lives
// entirely inside RunConnection's stack.
type Config struct {
	Sessions      *session.Manager
	Store         *memory.Store
	Audit         memory.AuditSink
	Transcriber   transcriber.Transcriber
	Responder     responder.Responder
	Synthesizer   synthesizer.Synthesizer
	Metrics       *observability.Metrics
	VoiceID       string
	MinConfidence float64
	Now           func() time.Time
}

type Orchestrator struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{cfg: cfg, now: now}
}

// RunConnection drives one websocket connection's session lifecycle: it
// owns session creation/registration/teardown, routes audio frames through
// the Analyzer and VAT, opens/closes the Transcriber on VAT decisions, and
// forwards admin operations (history/clear/stats) to the Conversation Store.
// It returns when inbound is closed or ctx is cancelled.
func (o *Orchestrator) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	emit := func(ev any) {
		select {
		case outbound <- ev:
		case <-ctx.Done():
		}
	}
	emit(protocol.Ready{Type: protocol.TypeReady})

	var (
		sess       *session.Session
		tracker    = vat.New()
		ctrl       *tbic.TBIC
		handle     transcriber.Handle
		processing bool
	)

	vatEvents := make(chan vat.Decision, 4)
	fragments := make(chan transcriber.Fragment, 64)
	transcriberErrs := make(chan error, 4)

	closeTranscriber := func() {
		if handle == nil {
			return
		}
		_ = handle.Close()
		handle = nil
		if sess != nil {
			_ = o.cfg.Sessions.SetHasTranscriber(sess.ID, false)
		}
	}

	openTranscriber := func() {
		if sess == nil || handle != nil || o.cfg.Transcriber == nil {
			return
		}
		h, err := o.cfg.Transcriber.Open(ctx, sess.LanguageCode, defaultSampleRate, transcriber.Callbacks{
			OnFragment: func(f transcriber.Fragment) {
				select {
				case fragments <- f:
				case <-ctx.Done():
				}
			},
			OnError: func(err error) {
				select {
				case transcriberErrs <- err:
				case <-ctx.Done():
				}
			},
		})
		if err != nil {
			log.Printf("orchestrator: open transcriber failed for session %s: %v", sess.ID, err)
			tracker.NotifyTranscriberClosed()
			return
		}
		handle = h
		_ = o.cfg.Sessions.SetHasTranscriber(sess.ID, true)
	}

	stopTranscription := func() {
		if ctrl != nil {
			ctrl.Flush()
		}
		closeTranscriber()
	}

	teardown := func() {
		if ctrl != nil {
			ctrl.Flush()
			ctrl.Shutdown()
		}
		closeTranscriber()
		tracker.Reset()
		if sess != nil {
			_, _ = o.cfg.Sessions.Remove(sess.ID)
			o.cfg.Metrics.ActiveSessions.Set(float64(o.cfg.Sessions.ActiveCount()))
		}
	}

	onFrame := func(m protocol.AudioData) {
		if sess == nil || !processing {
			return
		}
		sampleRate := m.SampleRate
		if sampleRate <= 0 {
			sampleRate = defaultSampleRate
		}
		channels := m.Channels
		if channels <= 0 {
			channels = 1
		}
		result := audio.Analyze(audio.Frame{
			TimestampMs: o.now().UnixMilli(),
			Samples:     m.Samples,
			SampleRate:  sampleRate,
			Channels:    channels,
		})
		decision := tracker.Observe(result.VoiceActive, func() {
			select {
			case vatEvents <- vat.DecisionStopTranscribe:
			case <-ctx.Done():
			}
		})
		switch decision {
		case vat.DecisionStartTranscribe:
			openTranscriber()
		case vat.DecisionStopTranscribe:
			stopTranscription()
		}
		if handle != nil {
			if ok := handle.Push(audio.EncodeSamplesPCM16LE(m.Samples)); !ok {
				log.Printf("orchestrator: dropped audio frame for session %s, transcriber not accepting", sess.ID)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			teardown()
			return nil

		case msg, ok := <-inbound:
			if !ok {
				teardown()
				return nil
			}
			switch m := msg.(type) {
			case protocol.StartSession:
				sess = o.cfg.Sessions.Create(m.UserID, m.LanguageCode)
				ctrl = tbic.New(tbic.Config{
					UserID:        sess.UserID,
					SessionID:     sess.ID,
					VoiceID:       o.cfg.VoiceID,
					Responder:     o.cfg.Responder,
					Synthesizer:   o.cfg.Synthesizer,
					Store:         o.cfg.Store,
					Audit:         o.cfg.Audit,
					Emit:          &wsEmitter{emit: emit, now: o.now},
					Metrics:       o.cfg.Metrics,
					MinConfidence: o.cfg.MinConfidence,
					Now:           o.now,
				})
				o.cfg.Metrics.ActiveSessions.Set(float64(o.cfg.Sessions.ActiveCount()))
				o.cfg.Metrics.SessionEvents.WithLabelValues("created").Inc()
				emit(protocol.SessionCreated{Type: protocol.TypeSessionCreated, SessionID: sess.ID, Message: "session created"})

			case protocol.StartProcessing:
				if sess == nil || m.SessionID != sess.ID {
					emit(protocol.Error{Type: protocol.TypeError, Message: "unknown session"})
					continue
				}
				_ = o.cfg.Sessions.SetProcessing(sess.ID, true)
				processing = true
				tracker.Reset()
				o.cfg.Metrics.SessionEvents.WithLabelValues("processing_started").Inc()
				emit(protocol.ProcessingStarted{Type: protocol.TypeProcessingStarted, Message: "processing started"})

			case protocol.StopProcessing:
				if sess == nil || (m.SessionID != "" && m.SessionID != sess.ID) {
					continue
				}
				stopTranscription()
				tracker.Reset()
				processing = false
				_ = o.cfg.Sessions.SetProcessing(sess.ID, false)
				o.cfg.Metrics.SessionEvents.WithLabelValues("processing_stopped").Inc()
				emit(protocol.ProcessingStopped{Type: protocol.TypeProcessingStopped, Message: "processing stopped"})

			case protocol.AudioData:
				if sess == nil || m.SessionID != sess.ID {
					continue
				}
				_ = o.cfg.Sessions.Touch(sess.ID)
				onFrame(m)

			case protocol.GetConversationHistory:
				if sess == nil {
					emit(protocol.ConversationError{Type: protocol.TypeConversationError, Message: "no active session"})
					continue
				}
				limit := m.Limit
				if limit <= 0 {
					limit = memory.DefaultHistoryWindow
				}
				turns := o.cfg.Store.Window(sess.UserID, limit)
				history := make([]protocol.ConversationHistoryTurn, len(turns))
				for i, t := range turns {
					history[i] = protocol.ConversationHistoryTurn{
						Role:      string(t.Role),
						Content:   t.Content,
						Timestamp: t.Timestamp.UnixMilli(),
					}
				}
				emit(protocol.ConversationHistory{
					Type:      protocol.TypeConversationHistory,
					History:   history,
					UserID:    sess.UserID,
					Timestamp: o.now().UnixMilli(),
				})

			case protocol.ClearConversation:
				if sess == nil {
					emit(protocol.ConversationError{Type: protocol.TypeConversationError, Message: "no active session"})
					continue
				}
				o.cfg.Store.Clear(sess.UserID)
				emit(protocol.ConversationCleared{Type: protocol.TypeConversationCleared, UserID: sess.UserID, Timestamp: o.now().UnixMilli()})

			case protocol.GetConversationStats:
				stats := o.cfg.Store.Stats()
				emit(protocol.ConversationStats{
					Type:              protocol.TypeConversationStats,
					ConversationCount: stats.ConversationCount,
					TotalTurns:        stats.TotalTurns,
					Timestamp:         o.now().UnixMilli(),
				})
			}

		case d := <-vatEvents:
			if d == vat.DecisionStopTranscribe {
				stopTranscription()
			}

		case f := <-fragments:
			emit(protocol.TranscriptionResult{
				Type:       protocol.TypeTranscriptionResult,
				Transcript: f.Text,
				Confidence: f.Confidence,
				IsPartial:  f.IsPartial,
				Timestamp:  o.now().UnixMilli(),
			})
			if !f.IsPartial && ctrl != nil {
				ctrl.OnFinalFragment(f)
			}

		case err := <-transcriberErrs:
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.ProviderErrors.WithLabelValues("transcriber", "stream_error").Inc()
			}
			emit(protocol.TranscriptionError{Type: protocol.TypeTranscriptionError, Message: err.Error()})
			closeTranscriber()
			tracker.NotifyTranscriberClosed()
		}
	}
}

// wsEmitter adapts tbic.Emitter onto the transport's outbound event vocabulary.
type wsEmitter struct {
	emit func(any)
	now  func() time.Time
}

func (e *wsEmitter) Interrupted(ts time.Time) {
	e.emit(protocol.AIInterrupted{Type: protocol.TypeAIInterrupted, Timestamp: ts.UnixMilli(), InterruptedAt: ts.UnixMilli()})
}

func (e *wsEmitter) AIResponse(response, transcript string, confidence float64, ts time.Time) {
	e.emit(protocol.AIResponse{
		Type:                protocol.TypeAIResponse,
		Response:            response,
		Transcript:          transcript,
		Timestamp:           ts.UnixMilli(),
		Confidence:          confidence,
		BufferedTranscripts: true,
	})
}

func (e *wsEmitter) AIResponseError(message string, ts time.Time) {
	e.emit(protocol.AIResponseError{Type: protocol.TypeAIResponseError, Message: message, Timestamp: ts.UnixMilli()})
}

func (e *wsEmitter) TTSAudio(audioBytes []byte, text string, ts time.Time) {
	e.emit(protocol.TTSAudio{Type: protocol.TypeTTSAudio, AudioData: audioBytes, Text: text, Timestamp: ts.UnixMilli()})
}

func (e *wsEmitter) TTSError(message string, ts time.Time) {
	e.emit(protocol.TTSError{Type: protocol.TypeTTSError, Message: message, Timestamp: ts.UnixMilli()})
}

func (e *wsEmitter) TTSUnavailable(message string, ts time.Time) {
	e.emit(protocol.TTSUnavailable{Type: protocol.TypeTTSUnavailable, Message: message, Timestamp: ts.UnixMilli()})
}
