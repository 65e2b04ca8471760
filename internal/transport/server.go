// Package transport implements the HTTP and websocket surface: the static
// client page, health/status/session-listing endpoints, and the websocket
// upgrade that hands each connection to the Session Orchestrator.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/internal/observability"
	"github.com/voxrelay/voxrelay/internal/protocol"
	"github.com/voxrelay/voxrelay/internal/session"
)

// Orchestrator is the minimal surface the transport needs from the Session
// Orchestrator; satisfied by *orchestrator.Orchestrator.
type Orchestrator interface {
	RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	sessions       *session.Manager
	orchestrator   Orchestrator
	metrics        *observability.Metrics
	upgrader       websocket.Upgrader
	static         http.Handler
	startedAt      time.Time
	allowAnyOrigin bool
}

func New(sessions *session.Manager, orchestrator Orchestrator, metrics *observability.Metrics, allowAnyOrigin bool) *Server {
	s := &Server{
		sessions:       sessions,
		orchestrator:   orchestrator,
		metrics:        metrics,
		static:         newStaticHandler(),
		startedAt:      time.Now(),
		allowAnyOrigin: allowAnyOrigin,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin only allows browser websocket connections from the same
// origin unless AllowAnyOrigin is set; non-browser clients usually omit
// Origin entirely and are allowed through.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/", s.static)
	r.Get("/health-check", s.handleHealthCheck)
	r.Get("/health", s.handleHealthCheck)
	r.Get("/status", s.handleStatus)
	r.Get("/sessions", s.handleSessions)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"activeSessions":       s.sessions.ActiveCount(),
		"activeTranscriptions": s.sessions.ActiveTranscriptionCount(),
		"uptime":               time.Since(s.startedAt).Seconds(),
		"timestamp":            time.Now().UnixMilli(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message":        "voxrelay is running",
		"activeSessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.sessions.List()
	out := make([]map[string]any, len(snapshots))
	for i, snap := range snapshots {
		out[i] = map[string]any{
			"id":               snap.ID,
			"userId":           snap.UserID,
			"isProcessing":     snap.IsProcessing,
			"hasTranscription": snap.HasTranscriber,
			"duration":         snap.Duration.Seconds(),
			"languageCode":     snap.LanguageCode,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.orchestrator.RunConnection(ctx, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(4 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.Error{Type: protocol.TypeError, Message: err.Error()}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the outbound
				// queue is saturated rather than block the read loop.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func messageTypeOf(v any) (protocol.EventType, bool) {
	switch m := v.(type) {
	case protocol.StartSession:
		return m.Type, true
	case protocol.StartProcessing:
		return m.Type, true
	case protocol.StopProcessing:
		return m.Type, true
	case protocol.AudioData:
		return m.Type, true
	case protocol.GetConversationHistory:
		return m.Type, true
	case protocol.ClearConversation:
		return m.Type, true
	case protocol.GetConversationStats:
		return m.Type, true
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
	case protocol.AIResponseError:
		return m.Type, true
	case protocol.AIInterrupted:
		return m.Type, true
	case protocol.TTSAudio:
		return m.Type, true
	case protocol.TTSError:
		return m.Type, true
	case protocol.TTSUnavailable:
		return m.Type, true
	case protocol.TranscriptionError:
		return m.Type, true
	case protocol.ConversationHistory:
		return m.Type, true
	case protocol.ConversationCleared:
		return m.Type, true
	case protocol.ConversationStats:
		return m.Type, true
	case protocol.ConversationError:
		return m.Type, true
	case protocol.Error:
		return m.Type, true
	default:
		return "", false
	}
}
