// Package synthesis renders feedback text to speech with viseme timing for
// client-side mouth animation.
//
// The happy path synthesizes through a configured [tts.Engine] and extracts
// mouth cues with an external lip-sync executable. Every failure along that
// path degrades instead of erroring: a dead engine yields a silent placeholder
// clip, and a missing or failing lip-sync binary yields synthetic cues, so a
// caller always receives playable audio with a well-formed cue track.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fluentive/fluentive/internal/resilience"
	"github.com/fluentive/fluentive/pkg/provider/tts"
)

// Cue is one mouth shape over a time span. Values follow the Preston Blair
// mouth-shape alphabet (A through F plus the extended G, H, X).
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Speech is a finished synthesis: WAV audio plus its cue track.
type Speech struct {
	Audio    []byte  `json:"-"`
	Visemes  []Cue   `json:"visemes"`
	Duration float64 `json:"duration"`
	// Fallback marks audio produced by the silent placeholder path.
	Fallback bool `json:"fallback"`
}

// femaleHints select a voice when the configured name matches nothing. The
// tutor persona defaults to a female voice where the engine offers one.
var femaleHints = []string{"female", "woman", "jenny", "aria", "emma", "sofia", "amy"}

// Synthesizer runs the speech pipeline for feedback text.
type Synthesizer struct {
	engine  tts.Engine
	breaker *resilience.CircuitBreaker
	lipSync *LipSyncRunner
	voice   string
	tmpDir  string
}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithVoice sets the preferred voice name or ID.
func WithVoice(name string) Option {
	return func(s *Synthesizer) { s.voice = name }
}

// WithLipSync attaches a lip-sync runner. Without one every clip gets
// synthetic cues.
func WithLipSync(r *LipSyncRunner) Option {
	return func(s *Synthesizer) { s.lipSync = r }
}

// WithTempDir overrides the scratch directory for intermediate WAV files.
func WithTempDir(dir string) Option {
	return func(s *Synthesizer) { s.tmpDir = dir }
}

// New returns a Synthesizer over engine. engine may be nil, in which case
// every call takes the silent fallback path.
func New(engine tts.Engine, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		engine:  engine,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "tts"}),
		tmpDir:  os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak synthesizes text. Empty text returns an empty, well-formed Speech
// with no audio and no cues.
func (s *Synthesizer) Speak(ctx context.Context, text string) (*Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Speech{Visemes: []Cue{}}, nil
	}

	if s.engine == nil {
		return silentSpeech(text), nil
	}

	var wavPath string
	err := s.breaker.Execute(func() error {
		var serr error
		wavPath, serr = s.synthesizeToFile(ctx, text)
		return serr
	})
	if err != nil {
		slog.Warn("synthesis: engine failed, producing silent clip",
			"stage", "synthesis", "error", err)
		return silentSpeech(text), nil
	}
	defer os.Remove(wavPath)

	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("synthesis: read rendered audio: %w", err)
	}

	duration := wavDuration(audio)
	cues := s.extractCues(ctx, wavPath, text, duration)

	return &Speech{
		Audio:    audio,
		Visemes:  cues,
		Duration: duration,
	}, nil
}

func (s *Synthesizer) synthesizeToFile(ctx context.Context, text string) (string, error) {
	f, err := os.CreateTemp(s.tmpDir, "speech-*.wav")
	if err != nil {
		return "", fmt.Errorf("synthesis: create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	voiceID, err := s.resolveVoice(ctx)
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if err := s.engine.Synthesize(ctx, text, voiceID, path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("synthesis: engine synthesize: %w", err)
	}
	return path, nil
}

// resolveVoice picks a voice ID: exact match on ID or name first, then
// case-insensitive substring, then the female hint list, then the engine's
// first voice. An engine with no voice list gets the configured name as-is.
func (s *Synthesizer) resolveVoice(ctx context.Context) (string, error) {
	voices, err := s.engine.Voices(ctx)
	if err != nil {
		return "", fmt.Errorf("synthesis: list voices: %w", err)
	}
	if len(voices) == 0 {
		return s.voice, nil
	}

	if s.voice != "" {
		for _, v := range voices {
			if v.ID == s.voice || v.Name == s.voice {
				return v.ID, nil
			}
		}
		want := strings.ToLower(s.voice)
		for _, v := range voices {
			if strings.Contains(strings.ToLower(v.ID), want) ||
				strings.Contains(strings.ToLower(v.Name), want) {
				return v.ID, nil
			}
		}
	}

	for _, v := range voices {
		lower := strings.ToLower(v.ID + " " + v.Name)
		for _, hint := range femaleHints {
			if strings.Contains(lower, hint) {
				return v.ID, nil
			}
		}
	}
	return voices[0].ID, nil
}

// extractCues runs lip-sync when a runner is configured, falling back to a
// synthetic cue track on any failure.
func (s *Synthesizer) extractCues(ctx context.Context, wavPath, text string, duration float64) []Cue {
	if s.lipSync != nil {
		cues, err := s.lipSync.Extract(ctx, wavPath)
		if err == nil && len(cues) > 0 {
			return cues
		}
		if err != nil {
			slog.Warn("synthesis: lip-sync failed, using synthetic cues",
				"stage", "synthesis", "error", err)
		}
	}
	if duration <= 0 {
		duration = estimateDuration(text)
	}
	return syntheticCues(duration)
}
