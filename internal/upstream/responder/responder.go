// Package responder declares the abstract Responder adapter: prompt in,
// reply text out.
package responder

import "context"

// Responder turns an assembled prompt into a reply. Implementations must
// stop producing any observable effect once ctx is cancelled — a cancelled
// call whose provider later returns a late success must still be treated as
// discarded by the caller.
type Responder interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
