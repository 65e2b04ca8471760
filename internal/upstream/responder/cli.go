package responder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIResponder executes a local binary and takes its stdout as the reply.
type CLIResponder struct {
	binaryPath string
}

func NewCLIResponder(binaryPath string) *CLIResponder {
	return &CLIResponder{binaryPath: strings.TrimSpace(binaryPath)}
}

func (a *CLIResponder) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binaryPath, "--message", prompt, "--json", "--no-color")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("responder cli failed: %w: %s", err, errText)
	}

	return strings.TrimSpace(stdout.String()), nil
}
