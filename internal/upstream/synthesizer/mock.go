package synthesizer

import (
	"context"
	"strings"
)

// Mock is used when no synthesis credential is configured.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) Synthesize(ctx context.Context, voiceID, text string) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	events := make(chan Event, 2)
	if strings.TrimSpace(text) != "" {
		events <- Event{Type: EventAudio, Audio: []byte(text)}
	}
	events <- Event{Type: EventFinal}
	close(events)
	return &precomputedStream{events: events}, nil
}
