package responder

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Config controls responder construction. Mode "auto" prefers a configured
// HTTP endpoint, falls back to a CLI binary found on PATH, and falls back
// again to Mock — so a session always has a Responder, just possibly a
// canned one, per the missing-credential policy.
type Config struct {
	Mode    string
	HTTPURL string
	CLIPath string
}

func New(cfg Config) (Responder, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAuto(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("responder HTTP url is required for http mode")
		}
		return NewHTTPResponder(cfg.HTTPURL), nil
	case "cli":
		if strings.TrimSpace(cfg.CLIPath) == "" {
			return nil, errors.New("responder CLI path is required for cli mode")
		}
		return NewCLIResponder(cfg.CLIPath), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported responder mode %q", cfg.Mode)
	}
}

func newAuto(cfg Config) Responder {
	httpURL := strings.TrimSpace(cfg.HTTPURL)
	if httpURL != "" {
		return NewHTTPResponder(httpURL)
	}
	cliPath := strings.TrimSpace(cfg.CLIPath)
	if cliPath != "" {
		if _, err := exec.LookPath(cliPath); err == nil {
			return NewCLIResponder(cliPath)
		}
	}
	return NewMock()
}
