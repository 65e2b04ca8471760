package transcriber

import "context"

// Mock is used when no transcription credential is configured. Per the
// missing-credential error policy, audio is still accepted for VAD purposes
// but no transcription-error is ever emitted and no fragments are produced.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) Open(context.Context, string, int, Callbacks) (Handle, error) {
	return &mockHandle{}, nil
}

type mockHandle struct{}

func (*mockHandle) Push([]byte) bool { return true }
func (*mockHandle) Close() error     { return nil }
