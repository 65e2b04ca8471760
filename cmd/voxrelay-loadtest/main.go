// Command voxrelay-loadtest drives the websocket transport like a real
// client: opens a session, streams synthetic PCM turns, and reports how
// long each turn took until its first ai-response (or tts-unavailable /
// tts-audio, whichever arrives first); it does not wait for the audio.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	languageCode   string
	turns          int
	chunkMS        int
	utteranceMS    int
	realtime       float64
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay-loadtest: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay-loadtest: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var interTurnMS, turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "voxrelay base URL")
	flag.StringVar(&cfg.userID, "user-id", "loadtest-user", "userId for the synthetic session")
	flag.StringVar(&cfg.languageCode, "language", "en-US", "languageCode for the synthetic session")
	flag.IntVar(&cfg.turns, "turns", 5, "number of synthetic turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 64, "audio frame size in milliseconds")
	flag.IntVar(&cfg.utteranceMS, "utterance-ms", 1200, "synthetic voiced-tone duration per turn in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 3.0, "frame pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 300, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for a reply per turn in milliseconds")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan map[string]any, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh)

	sessionID, err := startSession(conn, events, readErrCh, cfg)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("voxrelay-loadtest: session=%s turns=%d chunk_ms=%d realtime=%.2f\n", sessionID, cfg.turns, cfg.chunkMS, cfg.realtime)
	}

	for i := 0; i < cfg.turns; i++ {
		start := time.Now()
		if err := streamTurn(conn, sessionID, cfg); err != nil {
			return fmt.Errorf("turn %d stream: %w", i+1, err)
		}
		outcome, err := awaitReply(events, readErrCh, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await reply: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Printf("voxrelay-loadtest: turn %d/%d outcome=%s elapsed=%s\n", i+1, cfg.turns, outcome, time.Since(start))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	if cfg.verbose {
		fmt.Println("voxrelay-loadtest: replay completed")
	}
	return nil
}

func startSession(conn *websocket.Conn, events <-chan map[string]any, readErrCh <-chan error, cfg options) (string, error) {
	start := protocol.StartSession{
		Type:         protocol.TypeStartSession,
		UserID:       cfg.userID,
		LanguageCode: cfg.languageCode,
	}
	if err := conn.WriteJSON(start); err != nil {
		return "", err
	}

	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()
	for {
		select {
		case err := <-readErrCh:
			return "", err
		case ev := <-events:
			if typ, _ := ev["type"].(string); typ == string(protocol.TypeSessionCreated) {
				sessionID, _ := ev["sessionId"].(string)
				if sessionID == "" {
					return "", fmt.Errorf("session-created missing sessionId")
				}
				return sessionID, startProcessing(conn, sessionID)
			}
		case <-timer.C:
			return "", fmt.Errorf("timeout waiting for session-created")
		}
	}
}

func startProcessing(conn *websocket.Conn, sessionID string) error {
	return conn.WriteJSON(protocol.StartProcessing{
		Type:      protocol.TypeStartProcessing,
		SessionID: sessionID,
	})
}

// streamTurn sends a synthetic voiced tone followed by enough trailing
// silence to push the Voice Activity Tracker through its silence-arming
// window and trigger STOP_TRANSCRIPTION on the server.
func streamTurn(conn *websocket.Conn, sessionID string, cfg options) error {
	const sampleRate = 16000
	samplesPerChunk := sampleRate * cfg.chunkMS / 1000

	voicedChunks := cfg.utteranceMS / cfg.chunkMS
	silenceChunks := 3000/cfg.chunkMS + 1

	for i := 0; i < voicedChunks+silenceChunks; i++ {
		voiced := i < voicedChunks
		samples := make([]int16, samplesPerChunk)
		if voiced {
			fillTone(samples, sampleRate, 220.0, float64(i*samplesPerChunk)/float64(sampleRate))
		}
		msg := protocol.AudioData{
			Type:       protocol.TypeAudioData,
			SessionID:  sessionID,
			Samples:    samples,
			SampleRate: sampleRate,
			Channels:   1,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		chunkDuration := time.Duration(float64(time.Duration(cfg.chunkMS)*time.Millisecond) / cfg.realtime)
		if chunkDuration <= 0 {
			chunkDuration = time.Millisecond
		}
		time.Sleep(chunkDuration)
	}
	return nil
}

func fillTone(samples []int16, sampleRate int, freqHz, startSeconds float64) {
	const amplitude = 12000
	for i := range samples {
		t := startSeconds + float64(i)/float64(sampleRate)
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freqHz*t))
	}
}

func awaitReply(events <-chan map[string]any, readErrCh <-chan error, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case err := <-readErrCh:
			return "", err
		case ev := <-events:
			switch typ, _ := ev["type"].(string); typ {
			case string(protocol.TypeAIResponse), string(protocol.TypeTTSAudio), string(protocol.TypeTTSUnavailable):
				return typ, nil
			case string(protocol.TypeAIResponseError), string(protocol.TypeTranscriptionError):
				return "", fmt.Errorf("%s", typ)
			}
		case <-timer.C:
			return "", fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func readLoop(conn *websocket.Conn, events chan<- map[string]any, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		events <- ev
	}
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
