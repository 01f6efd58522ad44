// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// An STT backend turns an uploaded audio clip into an ordered list of text
// segments. Unlike a live conversation system, the evaluation pipeline only
// ever transcribes complete clips that have already been written to disk, so
// the interface is batch-oriented: one file in, one segment list out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Segment is one contiguous span of recognised speech.
type Segment struct {
	// Text is the transcribed content of the span.
	Text string

	// Start and End bound the span within the clip. Zero values are permitted
	// for backends that do not report timings.
	Start time.Duration
	End   time.Duration
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe recognises speech in the audio file at path. language is an
	// optional BCP-47 hint; empty means auto-detect where supported.
	//
	// An unsupported container or missing demuxer surfaces as an error; the
	// transcript resolver reacts by re-encoding the clip once and retrying.
	Transcribe(ctx context.Context, path, language string) ([]Segment, error)
}
