package synthesizer

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config controls Synthesizer construction, mirroring
// transcriber.Config's auto/ws/duplex/mock dispatch.
type Config struct {
	Mode string

	WebsocketStream WebsocketStreamConfig

	StreamDuplexPythonPath string
	StreamDuplexScript     string
}

func New(cfg Config) (Synthesizer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAuto(cfg), nil
	case "ws":
		if strings.TrimSpace(cfg.WebsocketStream.APIKey) == "" {
			return nil, errors.New("synthesizer API key is required for ws mode")
		}
		return NewWebsocketStream(cfg.WebsocketStream), nil
	case "duplex":
		if strings.TrimSpace(cfg.StreamDuplexScript) == "" {
			return nil, errors.New("synthesizer duplex script path is required for duplex mode")
		}
		return NewStreamDuplex(StreamDuplexConfig{
			PythonPath: cfg.StreamDuplexPythonPath,
			ScriptPath: cfg.StreamDuplexScript,
		}), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported synthesizer mode %q", cfg.Mode)
	}
}

func newAuto(cfg Config) Synthesizer {
	hasWS := strings.TrimSpace(cfg.WebsocketStream.APIKey) != ""
	hasDuplex := scriptExists(cfg.StreamDuplexScript)

	switch {
	case hasWS && hasDuplex:
		primary := NewWebsocketStream(cfg.WebsocketStream)
		fallback := NewStreamDuplex(StreamDuplexConfig{
			PythonPath: cfg.StreamDuplexPythonPath,
			ScriptPath: cfg.StreamDuplexScript,
		})
		return NewFailover(primary, fallback)
	case hasWS:
		return NewWebsocketStream(cfg.WebsocketStream)
	case hasDuplex:
		return NewStreamDuplex(StreamDuplexConfig{
			PythonPath: cfg.StreamDuplexPythonPath,
			ScriptPath: cfg.StreamDuplexScript,
		})
	default:
		return NewMock()
	}
}

func scriptExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
