package responder

import (
	"context"
	"strings"
)

// Mock provides a deterministic canned reply, used per the missing-credential
// error policy: absence of a Responder credential disables the real
// capability but the session still gets a fallback reply rather than an
// error.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "I'm listening.", nil
	}
	return "I heard you, but my reasoning service isn't configured right now.", nil
}
