package transcriber

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// StreamDuplexConfig configures a speech-to-text backend reached over a
// persistent bidirectional byte stream: a long-lived subprocess fed audio
// on stdin and emitting one JSON line per recognized hypothesis on stdout.
type StreamDuplexConfig struct {
	PythonPath string
	ScriptPath string
	Language   string
}

// StreamDuplex is the second of the two required equivalent Transcriber
// backends.
type StreamDuplex struct {
	cfg StreamDuplexConfig
}

func NewStreamDuplex(cfg StreamDuplexConfig) *StreamDuplex {
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en"
	}
	return &StreamDuplex{cfg: cfg}
}

func (p *StreamDuplex) Open(ctx context.Context, language string, sampleRate int, cb Callbacks) (Handle, error) {
	if strings.TrimSpace(p.cfg.ScriptPath) == "" {
		return nil, ErrUpstreamUnavailable
	}
	if strings.TrimSpace(language) == "" {
		language = p.cfg.Language
	}

	pythonPath := p.cfg.PythonPath
	if strings.TrimSpace(pythonPath) == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, p.cfg.ScriptPath, "--language", language, "--sample-rate", fmt.Sprintf("%d", sampleRate))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrUpstreamUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrUpstreamUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start worker: %v", ErrUpstreamUnavailable, err)
	}

	h := &streamDuplexHandle{
		cmd:   cmd,
		stdin: stdin,
		dec:   json.NewDecoder(bufio.NewReaderSize(stdout, 64*1024)),
		cb:    cb,
	}
	go h.readLoop()
	return h, nil
}

type streamDuplexLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
	Error      string  `json:"error,omitempty"`
}

type streamDuplexHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	dec   *json.Decoder
	cb    Callbacks

	mu     sync.Mutex
	closed bool
}

func (h *streamDuplexHandle) Push(frameBytes []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	line := struct {
		AudioBase64 string `json:"audio_base64"`
	}{AudioBase64: base64.StdEncoding.EncodeToString(frameBytes)}
	b, err := json.Marshal(line)
	if err != nil {
		return false
	}
	b = append(b, '\n')
	if _, err := h.stdin.Write(b); err != nil {
		return false
	}
	return true
}

func (h *streamDuplexHandle) readLoop() {
	defer h.safeClose()
	for {
		var line streamDuplexLine
		if err := h.dec.Decode(&line); err != nil {
			if h.cb.OnError != nil {
				h.cb.OnError(fmt.Errorf("transcriber worker stream closed: %w", err))
			}
			return
		}
		if line.Error != "" {
			if h.cb.OnError != nil {
				h.cb.OnError(fmt.Errorf("transcriber worker error: %s", line.Error))
			}
			continue
		}
		if h.cb.OnFragment != nil {
			h.cb.OnFragment(Fragment{
				Text:       line.Text,
				Confidence: line.Confidence,
				IsPartial:  !line.Final,
				Timestamp:  time.Now(),
			})
		}
	}
}

func (h *streamDuplexHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_, _ = h.cmd.Process.Wait()
	}
	return nil
}

func (h *streamDuplexHandle) safeClose() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	_ = h.stdin.Close()
}
