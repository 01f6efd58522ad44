package synthesis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/fluentive/fluentive/pkg/provider/tts"
	mocktts "github.com/fluentive/fluentive/pkg/provider/tts/mock"
)

func TestSpeakEmptyText(t *testing.T) {
	s := New(&mocktts.Engine{})
	got, err := s.Speak(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if len(got.Audio) != 0 || len(got.Visemes) != 0 || got.Duration != 0 {
		t.Fatalf("Speak(empty) = %+v, want empty result", got)
	}
}

func TestSpeakNilEngineProducesSilentClip(t *testing.T) {
	s := New(nil)
	got, err := s.Speak(context.Background(), "this is a short answer")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if !got.Fallback {
		t.Fatal("Fallback = false, want true")
	}
	if len(got.Audio) == 0 {
		t.Fatal("Audio is empty, want silent WAV bytes")
	}
	if got.Duration < minDuration || got.Duration > maxDuration {
		t.Fatalf("Duration = %v, want within [%v, %v]", got.Duration, minDuration, maxDuration)
	}
	wantCues := int(math.Ceil(got.Duration / visemeStep))
	if diff := len(got.Visemes) - wantCues; diff < -1 || diff > 1 {
		t.Fatalf("len(Visemes) = %d, want %d ±1", len(got.Visemes), wantCues)
	}
}

func TestSpeakEngineFailureFallsBack(t *testing.T) {
	eng := &mocktts.Engine{
		VoiceList:     []tts.Voice{{ID: "v1", Name: "Default"}},
		SynthesizeErr: errors.New("server down"),
	}
	got, err := New(eng).Speak(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if !got.Fallback {
		t.Fatal("Fallback = false, want silent fallback after engine error")
	}
}

func TestSpeakUsesEngineAudio(t *testing.T) {
	eng := &mocktts.Engine{
		VoiceList: []tts.Voice{{ID: "v1", Name: "Jenny"}},
		WAVBytes:  []byte("RIFF-not-really-wav"),
	}
	got, err := New(eng, WithVoice("Jenny")).Speak(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if got.Fallback {
		t.Fatal("Fallback = true, want engine audio")
	}
	if string(got.Audio) != "RIFF-not-really-wav" {
		t.Fatalf("Audio = %q, want engine bytes", got.Audio)
	}
	if len(got.Visemes) == 0 {
		t.Fatal("Visemes is empty, want synthetic cues without a lip-sync runner")
	}
	calls := eng.SynthesizeCalls
	if len(calls) != 1 || calls[0].VoiceID != "v1" {
		t.Fatalf("SynthesizeCalls = %+v, want one call with voice v1", calls)
	}
}

func TestResolveVoice(t *testing.T) {
	voices := []tts.Voice{
		{ID: "p225", Name: "Male Deep"},
		{ID: "p226", Name: "Female Warm"},
		{ID: "jenny-high", Name: "Jenny"},
	}
	tests := []struct {
		name  string
		voice string
		want  string
	}{
		{"exact id", "p225", "p225"},
		{"exact name", "Jenny", "jenny-high"},
		{"substring", "warm", "p226"},
		{"no match falls to female hint", "nonexistent", "p226"},
		{"unset falls to female hint", "", "p226"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&mocktts.Engine{VoiceList: voices}, WithVoice(tt.voice))
			got, err := s.resolveVoice(context.Background())
			if err != nil {
				t.Fatalf("resolveVoice() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolveVoice() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("no hints falls to first voice", func(t *testing.T) {
		s := New(&mocktts.Engine{VoiceList: voices[:1]})
		got, err := s.resolveVoice(context.Background())
		if err != nil {
			t.Fatalf("resolveVoice() error = %v", err)
		}
		if got != "p225" {
			t.Fatalf("resolveVoice() = %q, want first voice", got)
		}
	})
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"single word clamps up", "hi", minDuration},
		{"eight words", "one two three four five six seven eight", 3.0},
		{"long text clamps down", "w w w w w w w w w w w w w w w w w w w w w w w w", maxDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateDuration(tt.text); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("estimateDuration(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSyntheticCues(t *testing.T) {
	cues := syntheticCues(0.25)
	if len(cues) != 4 {
		t.Fatalf("len(cues) = %d, want 4", len(cues))
	}
	if cues[0].Value != "A" || cues[1].Value != "B" {
		t.Fatalf("cue values = %q, %q, want cycle starting at A", cues[0].Value, cues[1].Value)
	}
	last := cues[len(cues)-1]
	if math.Abs(last.End-0.25) > 1e-9 {
		t.Fatalf("last cue end = %v, want trimmed to 0.25", last.End)
	}
	for i := 1; i < len(cues); i++ {
		if math.Abs(cues[i].Start-cues[i-1].End) > 1e-9 {
			t.Fatalf("cue %d start = %v, want contiguous with previous end %v", i, cues[i].Start, cues[i-1].End)
		}
	}
}

func TestWavDurationBadData(t *testing.T) {
	if got := wavDuration([]byte("not a wav")); got != 0 {
		t.Fatalf("wavDuration(garbage) = %v, want 0", got)
	}
}
