package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketVADConfig configures a speech-to-text backend reached over a
// websocket that accepts base64-encoded PCM frames and performs its own
// voice-activity detection/commit decisions server-side.
type WebsocketVADConfig struct {
	APIKey    string
	WSBaseURL string
	ModelID   string
}

// WebsocketVAD is one of the two required equivalent Transcriber backends.
type WebsocketVAD struct {
	cfg WebsocketVADConfig
}

func NewWebsocketVAD(cfg WebsocketVADConfig) *WebsocketVAD {
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "scribe_v1"
	}
	return &WebsocketVAD{cfg: cfg}
}

func (p *WebsocketVAD) Open(ctx context.Context, language string, sampleRate int, cb Callbacks) (Handle, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrUpstreamUnavailable
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("language", language)
	q.Set("commit_strategy", "vad")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrUpstreamUnavailable, err)
	}

	h := &wsvadHandle{conn: conn, cb: cb, sampleRate: sampleRate}
	go h.readLoop()
	return h, nil
}

type wsvadHandle struct {
	conn       *websocket.Conn
	cb         Callbacks
	sampleRate int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func (h *wsvadHandle) Push(frameBytes []byte) bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed {
		return false
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": base64.StdEncoding.EncodeToString(frameBytes),
		"sample_rate":   h.sampleRate,
	}
	if err := h.conn.WriteJSON(payload); err != nil {
		return false
	}
	return true
}

func (h *wsvadHandle) readLoop() {
	defer h.safeClose()
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if h.cb.OnError != nil {
				h.cb.OnError(fmt.Errorf("transcriber websocket closed: %w", err))
			}
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		messageType, _ := raw["message_type"].(string)
		switch messageType {
		case "partial_transcript":
			if h.cb.OnFragment != nil {
				h.cb.OnFragment(Fragment{
					Text:      asString(raw["text"]),
					IsPartial: true,
					Timestamp: time.Now(),
				})
			}
		case "committed_transcript":
			if h.cb.OnFragment != nil {
				h.cb.OnFragment(Fragment{
					Text:       asString(raw["text"]),
					Confidence: asFloat(raw["confidence"]),
					IsPartial:  false,
					Timestamp:  time.Now(),
				})
			}
		case "session_started", "", "input_audio_chunk":
			// control events, ignored
		default:
			if h.cb.OnError != nil && isProviderErrorMessageType(messageType) {
				h.cb.OnError(fmt.Errorf("transcriber provider error: %s: %s", messageType, asString(raw["error"])))
			}
		}
	}
}

func (h *wsvadHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.writeMu.Lock()
		h.closed = true
		h.writeMu.Unlock()
		err = h.conn.Close()
	})
	return err
}

func (h *wsvadHandle) safeClose() {
	h.closeOnce.Do(func() {
		h.writeMu.Lock()
		h.closed = true
		h.writeMu.Unlock()
		_ = h.conn.Close()
	})
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// isProviderErrorMessageType reports whether an unrecognized message_type is
// a genuine provider error worth surfacing via OnError, as opposed to some
// other control frame this backend doesn't yet model.
func isProviderErrorMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}
