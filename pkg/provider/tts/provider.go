// Package tts defines the Engine interface for Text-to-Speech backends.
//
// A TTS engine renders one feedback line to a WAV file on disk. The file
// form (rather than an audio stream) is deliberate: the lip-sync extractor is
// an external executable that reads a WAV path, so the synthesis chain hands
// the same temporary file to both consumers.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes one selectable voice offered by an engine.
type Voice struct {
	// ID is the engine-specific voice identifier passed back to Synthesize.
	ID string

	// Name is the human-readable voice name used for substring matching
	// against the configured voice preference.
	Name string
}

// Engine is the abstraction over any batch TTS backend.
type Engine interface {
	// Voices returns the engine's current voice catalogue. The synthesis
	// chain matches the configured voice name against ID and Name, then a
	// fixed hint list, then falls back to the engine default (empty voiceID).
	Voices(ctx context.Context) ([]Voice, error)

	// Synthesize renders text to a WAV file at outPath using the given voice.
	// An empty voiceID selects the engine default. Any failure is recoverable:
	// the synthesis chain degrades to a silent clip rather than erroring.
	Synthesize(ctx context.Context, text, voiceID, outPath string) error
}
