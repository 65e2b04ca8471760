package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketStreamConfig configures a text-to-speech backend reached over a
// websocket streaming protocol (send text, receive base64 audio chunks,
// receive a final marker).
type WebsocketStreamConfig struct {
	APIKey      string
	WSBaseURL   string
	ModelID     string
	OutputFormat string
}

// WebsocketStream is a websocket-based Synthesizer backend.
type WebsocketStream struct {
	cfg WebsocketStreamConfig
}

func NewWebsocketStream(cfg WebsocketStreamConfig) *WebsocketStream {
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	return &WebsocketStream{cfg: cfg}
}

func (p *WebsocketStream) Synthesize(ctx context.Context, voiceID, text string) (Stream, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("%w: voice id required", ErrUnavailable)
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrUnavailable, err)
	}

	s := &wsStream{conn: conn, events: make(chan Event, 64)}
	if err := s.writeJSON(map[string]any{"text": text, "try_trigger_generation": true}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: send text: %v", ErrUnavailable, err)
	}
	if err := s.writeJSON(map[string]any{"text": ""}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: close input: %v", ErrUnavailable, err)
	}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

func (s *wsStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *wsStream) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if audioB64, ok := raw["audio"].(string); ok && audioB64 != "" {
			audio, err := decodeBase64(audioB64)
			if err == nil {
				s.events <- Event{Type: EventAudio, Audio: audio}
			}
		}
		if isFinal(raw) {
			s.events <- Event{Type: EventFinal}
			return
		}
		if errMsg, ok := raw["error"].(string); ok && errMsg != "" {
			s.events <- Event{Type: EventError, Err: fmt.Errorf("%s", errMsg)}
		}
	}
}

func isFinal(raw map[string]any) bool {
	if b, ok := raw["isFinal"].(bool); ok && b {
		return true
	}
	b, ok := raw["is_final"].(bool)
	return ok && b
}

func (s *wsStream) Events() <-chan Event { return s.events }

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		close(s.events)
	})
	return err
}

func (s *wsStream) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}
