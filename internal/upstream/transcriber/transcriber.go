// Package transcriber declares the abstract Transcriber adapter: a
// long-lived duplex channel per session that turns pushed audio frames into
// partial/final transcript fragments.
package transcriber

import (
	"context"
	"errors"
	"time"
)

// ErrUpstreamUnavailable is returned by Open when credentials are missing or
// the connect attempt fails.
var ErrUpstreamUnavailable = errors.New("transcriber: upstream unavailable")

// Fragment is one recognized hypothesis delivered to the Orchestrator.
// Partials may be superseded by a later partial or final; finals are
// terminal for their span.
type Fragment struct {
	Text       string
	Confidence float64
	IsPartial  bool
	Timestamp  time.Time
}

// Callbacks is the events sink a caller passes to Open. The adapter is
// responsible for re-assembling provider-specific framing into this
// contract and for marshalling delivery onto whatever goroutine it uses
// internally; callers must not assume OnFragment/OnError fire on the
// goroutine that called Open.
type Callbacks struct {
	OnFragment func(Fragment)
	OnError    func(err error)
}

// Handle is a single open transcription channel for one session.
type Handle interface {
	// Push forwards raw PCM16LE bytes. If the channel is not yet open or has
	// already closed, the frame is dropped and Push returns false (callers
	// should log a warning at the call site using the returned bool). The
	// write to the upstream is synchronous: there is no outbound queue, so a
	// slow upstream delays the caller rather than dropping older frames.
	Push(frameBytes []byte) (accepted bool)
	// Close is idempotent and releases upstream resources.
	Close() error
}

// Transcriber opens duplex channels for a given language/sample rate. Two
// equivalent backends exist: StreamDuplex (a persistent bidirectional byte
// stream) and WebsocketVAD (a websocket carrying base64 PCM with
// server-side VAD). The Orchestrator only ever depends on this interface.
type Transcriber interface {
	Open(ctx context.Context, language string, sampleRate int, cb Callbacks) (Handle, error)
}
