package synthesis

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	fallbackSampleRate = 22050
	fallbackBitDepth   = 16

	// Placeholder clip length is estimated from word count at a normal
	// speaking rate and clamped so a one-word answer still produces
	// perceptible silence and a rambling one does not stall the client.
	wordsPerMinute = 160
	minDuration    = 0.5
	maxDuration    = 5.0

	// visemeStep is the synthetic cue interval. Real lip-sync output works at
	// roughly this granularity, so clients can treat both tracks the same.
	visemeStep = 0.08
)

// visemeCycle is the repeating mouth-shape sequence on synthetic tracks.
var visemeCycle = []string{"A", "B", "C", "D", "E", "F"}

// silentSpeech builds the placeholder clip for text: silence sized to its
// estimated spoken duration, with a synthetic cue track.
func silentSpeech(text string) *Speech {
	duration := estimateDuration(text)
	audioData, err := encodeSilence(duration)
	if err != nil {
		// Audio encoding of zeros failing is effectively impossible, but a
		// cue-only result is still usable by clients.
		slog.Error("synthesis: encode silent clip", "stage", "synthesis", "error", err)
		audioData = nil
	}
	return &Speech{
		Audio:    audioData,
		Visemes:  syntheticCues(duration),
		Duration: duration,
		Fallback: true,
	}
}

// estimateDuration converts a word count to seconds at the standard speaking
// rate, clamped to [minDuration, maxDuration].
func estimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	d := float64(words) / (wordsPerMinute / 60.0)
	if d < minDuration {
		return minDuration
	}
	if d > maxDuration {
		return maxDuration
	}
	return d
}

// encodeSilence renders duration seconds of 16-bit mono silence as a WAV
// file. The encoder needs a seekable target, so it round-trips through a
// temp file.
func encodeSilence(duration float64) ([]byte, error) {
	f, err := os.CreateTemp("", "silence-*.wav")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer os.Remove(path)

	samples := int(math.Round(duration * fallbackSampleRate))
	enc := wav.NewEncoder(f, fallbackSampleRate, fallbackBitDepth, 1, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: fallbackSampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: fallbackBitDepth,
	})
	if err == nil {
		err = enc.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// syntheticCues lays the viseme cycle across duration at visemeStep
// intervals. Cues are contiguous and non-overlapping: each cue starts where
// the previous one ended, and the final cue is trimmed to end exactly at
// duration, so together they cover [0, duration] with no gaps.
func syntheticCues(duration float64) []Cue {
	cues := []Cue{}
	for i := 0; ; i++ {
		start := float64(i) * visemeStep
		if start >= duration {
			break
		}
		end := start + visemeStep
		if end > duration {
			end = duration
		}
		cues = append(cues, Cue{
			Start: start,
			End:   end,
			Value: visemeCycle[i%len(visemeCycle)],
		})
	}
	return cues
}

// wavDuration reads the duration of a WAV byte slice, returning 0 when the
// data cannot be parsed.
func wavDuration(data []byte) float64 {
	d := wav.NewDecoder(bytes.NewReader(data))
	dur, err := d.Duration()
	if err != nil {
		return 0
	}
	return dur.Seconds()
}
