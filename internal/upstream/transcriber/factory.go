package transcriber

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config controls Transcriber construction. Mode "auto" prefers the
// websocket backend when an API key is configured, falls back to the
// subprocess duplex backend when its script is present, and falls back
// again to Mock — so a session always has a Transcriber, just possibly a
// silent one, per the missing-credential policy in §6.4/§7.
type Config struct {
	Mode string

	WebsocketVAD WebsocketVADConfig

	StreamDuplexPythonPath string
	StreamDuplexScript     string
}

func New(cfg Config) (Transcriber, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAuto(cfg), nil
	case "ws":
		if strings.TrimSpace(cfg.WebsocketVAD.APIKey) == "" {
			return nil, errors.New("transcriber API key is required for ws mode")
		}
		return NewWebsocketVAD(cfg.WebsocketVAD), nil
	case "duplex":
		if strings.TrimSpace(cfg.StreamDuplexScript) == "" {
			return nil, errors.New("transcriber duplex script path is required for duplex mode")
		}
		return NewStreamDuplex(StreamDuplexConfig{
			PythonPath: cfg.StreamDuplexPythonPath,
			ScriptPath: cfg.StreamDuplexScript,
		}), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported transcriber mode %q", cfg.Mode)
	}
}

func newAuto(cfg Config) Transcriber {
	hasWS := strings.TrimSpace(cfg.WebsocketVAD.APIKey) != ""
	hasDuplex := scriptExists(cfg.StreamDuplexScript)

	switch {
	case hasWS && hasDuplex:
		primary := NewWebsocketVAD(cfg.WebsocketVAD)
		fallback := NewStreamDuplex(StreamDuplexConfig{
			PythonPath: cfg.StreamDuplexPythonPath,
			ScriptPath: cfg.StreamDuplexScript,
		})
		return NewFailover(primary, fallback)
	case hasWS:
		return NewWebsocketVAD(cfg.WebsocketVAD)
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
