// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/fluentive/fluentive/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Call records a single Transcribe invocation.
type Call struct {
	Path     string
	Language string
}

// Transcriber is a mock implementation of stt.Transcriber.
//
// Segments and Err configure the canned result. ErrOnce, when set, makes only
// the first call fail — useful for exercising the resolver's single re-encode
// retry.
type Transcriber struct {
	mu sync.Mutex

	// Segments is returned on success.
	Segments []stt.Segment

	// Err, if non-nil, is returned from every call (unless ErrOnce is set).
	Err error

	// ErrOnce, if non-nil, is returned from the first call only.
	ErrOnce error

	// TranscribeCalls records every invocation in order.
	TranscribeCalls []Call

	calls int
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(_ context.Context, path, language string) ([]stt.Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.TranscribeCalls = append(t.TranscribeCalls, Call{Path: path, Language: language})
	t.calls++

	if t.ErrOnce != nil && t.calls == 1 {
		return nil, t.ErrOnce
	}
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Segments, nil
}
