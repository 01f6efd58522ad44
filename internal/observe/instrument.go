package observe

import (
	"context"

	"github.com/fluentive/fluentive/pkg/provider/embeddings"
	"github.com/fluentive/fluentive/pkg/provider/llm"
	"github.com/fluentive/fluentive/pkg/provider/stt"
	"github.com/fluentive/fluentive/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ llm.Provider        = (*instrumentedLLM)(nil)
	_ embeddings.Provider = (*instrumentedEmbeddings)(nil)
	_ stt.Transcriber     = (*instrumentedTranscriber)(nil)
	_ tts.Engine          = (*instrumentedEngine)(nil)
)

// InstrumentLLM wraps p so every completion is counted in
// [Metrics.ProviderRequests] under the given provider name and kind "llm",
// and failures increment [Metrics.ProviderErrors] and are logged with trace
// correlation. Returns p unchanged when m is nil.
func InstrumentLLM(name string, p llm.Provider, m *Metrics) llm.Provider {
	if m == nil {
		return p
	}
	return &instrumentedLLM{name: name, inner: p, metrics: m}
}

type instrumentedLLM struct {
	name    string
	inner   llm.Provider
	metrics *Metrics
}

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.inner.Complete(ctx, req)
	p.metrics.record(ctx, p.name, "llm", err)
	return resp, err
}

func (p *instrumentedLLM) ModelID() string { return p.inner.ModelID() }

// InstrumentEmbeddings wraps p the way [InstrumentLLM] does, under kind
// "embeddings". Returns p unchanged when m is nil.
func InstrumentEmbeddings(name string, p embeddings.Provider, m *Metrics) embeddings.Provider {
	if m == nil {
		return p
	}
	return &instrumentedEmbeddings{name: name, inner: p, metrics: m}
}

type instrumentedEmbeddings struct {
	name    string
	inner   embeddings.Provider
	metrics *Metrics
}

func (p *instrumentedEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.inner.Embed(ctx, text)
	p.metrics.record(ctx, p.name, "embeddings", err)
	return vec, err
}

func (p *instrumentedEmbeddings) ModelID() string { return p.inner.ModelID() }

// InstrumentTranscriber wraps t the way [InstrumentLLM] does, under kind
// "stt". Returns t unchanged when m is nil.
func InstrumentTranscriber(name string, t stt.Transcriber, m *Metrics) stt.Transcriber {
	if m == nil {
		return t
	}
	return &instrumentedTranscriber{name: name, inner: t, metrics: m}
}

type instrumentedTranscriber struct {
	name    string
	inner   stt.Transcriber
	metrics *Metrics
}

func (t *instrumentedTranscriber) Transcribe(ctx context.Context, path, language string) ([]stt.Segment, error) {
	segs, err := t.inner.Transcribe(ctx, path, language)
	t.metrics.record(ctx, t.name, "stt", err)
	return segs, err
}

// InstrumentTTS wraps e the way [InstrumentLLM] does, under kind "tts".
// Returns e unchanged when m is nil.
func InstrumentTTS(name string, e tts.Engine, m *Metrics) tts.Engine {
	if m == nil {
		return e
	}
	return &instrumentedEngine{name: name, inner: e, metrics: m}
}

type instrumentedEngine struct {
	name    string
	inner   tts.Engine
	metrics *Metrics
}

func (e *instrumentedEngine) Voices(ctx context.Context) ([]tts.Voice, error) {
	voices, err := e.inner.Voices(ctx)
	e.metrics.record(ctx, e.name, "tts", err)
	return voices, err
}

func (e *instrumentedEngine) Synthesize(ctx context.Context, text, voiceID, outPath string) error {
	err := e.inner.Synthesize(ctx, text, voiceID, outPath)
	e.metrics.record(ctx, e.name, "tts", err)
	return err
}

// record is the shared counter path for the instrumented wrappers.
func (m *Metrics) record(ctx context.Context, provider, kind string, err error) {
	if err != nil {
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
		Logger(ctx).Warn("provider request failed",
			"provider", provider, "kind", kind, "error", err)
		return
	}
	m.RecordProviderRequest(ctx, provider, kind, "ok")
}
