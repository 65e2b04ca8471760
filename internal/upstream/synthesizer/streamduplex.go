package synthesizer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// StreamDuplexConfig configures a text-to-speech backend reached over a
// persistent subprocess worker: one JSON request line in, one JSON response
// line out, single-flight per process.
type StreamDuplexConfig struct {
	PythonPath string
	ScriptPath string
}

type StreamDuplex struct {
	cfg StreamDuplexConfig

	mu     sync.Mutex
	worker *duplexWorker
}

func NewStreamDuplex(cfg StreamDuplexConfig) *StreamDuplex {
	return &StreamDuplex{cfg: cfg}
}

func (p *StreamDuplex) ensureWorker() (*duplexWorker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.worker != nil && !p.worker.closed() {
		return p.worker, nil
	}
	if strings.TrimSpace(p.cfg.ScriptPath) == "" {
		return nil, ErrUnavailable
	}
	pythonPath := p.cfg.PythonPath
	if strings.TrimSpace(pythonPath) == "" {
		pythonPath = "python3"
	}
	w, err := startDuplexWorker(pythonPath, p.cfg.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.worker = w
	return w, nil
}

func (p *StreamDuplex) Synthesize(ctx context.Context, voiceID, text string) (Stream, error) {
	w, err := p.ensureWorker()
	if err != nil {
		return nil, err
	}

	audio, format, err := w.synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	events := make(chan Event, 2)
	_ = format
	events <- Event{Type: EventAudio, Audio: audio}
	events <- Event{Type: EventFinal}
	close(events)
	return &precomputedStream{events: events}, nil
}

type precomputedStream struct {
	events chan Event
}

func (s *precomputedStream) Events() <-chan Event { return s.events }
func (s *precomputedStream) Close() error         { return nil }

type duplexRequest struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type duplexResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
	Error       string `json:"error"`
}

type duplexWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	dec    *json.Decoder
	mu     sync.Mutex
	isDone bool
}

func startDuplexWorker(pythonPath, scriptPath string) (*duplexWorker, error) {
	cmd := exec.Command(pythonPath, scriptPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	w := &duplexWorker{
		cmd:   cmd,
		stdin: stdin,
		dec:   json.NewDecoder(bufio.NewReaderSize(stdout, 64*1024)),
	}

	// Warmup call surfaces startup errors (missing model, bad script) early
	// instead of on the first real request.
	if _, _, err := w.synthesize(context.Background(), " ", ""); err != nil {
		_ = w.close()
		return nil, fmt.Errorf("warmup failed: %w", err)
	}
	return w, nil
}

func (w *duplexWorker) synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isDone {
		return nil, "", fmt.Errorf("worker closed")
	}

	id := fmt.Sprintf("req-%d", time.Now().UnixNano())
	req := duplexRequest{ID: id, Text: text, Voice: voice}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}
	b = append(b, '\n')
	if _, err := w.stdin.Write(b); err != nil {
		return nil, "", err
	}

	var resp duplexResponse
	if err := w.dec.Decode(&resp); err != nil {
		return nil, "", err
	}
	if resp.ID != id {
		return nil, "", fmt.Errorf("worker out-of-sync (got %q, expected %q)", resp.ID, id)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown worker error"
		}
		return nil, "", fmt.Errorf("%s", msg)
	}

	format := resp.Format
	if format == "" {
		format = "wav_24000"
	}
	if resp.AudioBase64 == "" {
		return []byte{}, format, nil
	}
	audio, err := decodeBase64(resp.AudioBase64)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio_base64: %w", err)
	}
	return audio, format, nil
}

func (w *duplexWorker) closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isDone
}

func (w *duplexWorker) close() error {
	w.mu.Lock()
	if w.isDone {
		w.mu.Unlock()
		return nil
	}
	w.isDone = true
	w.mu.Unlock()

	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
		_, _ = w.cmd.Process.Wait()
	}
	return nil
}
