// Package mock provides a test double for the tts.Engine interface.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/fluentive/fluentive/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

// SynthesizeCall records a single Synthesize invocation.
type SynthesizeCall struct {
	Text    string
	VoiceID string
	OutPath string
}

// Engine is a mock implementation of tts.Engine.
//
// On success, Synthesize writes WAVBytes (or a placeholder) to outPath so
// downstream consumers that read the file keep working.
type Engine struct {
	mu sync.Mutex

	// VoiceList is returned by Voices.
	VoiceList []tts.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// WAVBytes is the file content written by Synthesize. When nil a short
	// placeholder is written instead.
	WAVBytes []byte

	// SynthesizeErr, if non-nil, makes every Synthesize call fail.
	SynthesizeErr error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Voices implements tts.Engine.
func (e *Engine) Voices(_ context.Context) ([]tts.Voice, error) {
	if e.VoicesErr != nil {
		return nil, e.VoicesErr
	}
	return e.VoiceList, nil
}

// Synthesize implements tts.Engine.
func (e *Engine) Synthesize(_ context.Context, text, voiceID, outPath string) error {
	e.mu.Lock()
	e.SynthesizeCalls = append(e.SynthesizeCalls, SynthesizeCall{Text: text, VoiceID: voiceID, OutPath: outPath})
	e.mu.Unlock()

	if e.SynthesizeErr != nil {
		return e.SynthesizeErr
	}
	data := e.WAVBytes
	if data == nil {
		data = []byte("RIFF-mock-wav")
	}
	return os.WriteFile(outPath, data, 0o644)
}
