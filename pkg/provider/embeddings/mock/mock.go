// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/fluentive/fluentive/pkg/provider/embeddings"
)

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
//
// Vectors maps input text to the vector returned for it. When a text is not
// present in Vectors, Default is returned. Set Err to make every call fail.
type Provider struct {
	mu sync.Mutex

	// Vectors maps exact input strings to embedding vectors.
	Vectors map[string][]float32

	// Default is returned for inputs not present in Vectors.
	Default []float32

	// Err, if non-nil, is returned from every Embed call.
	Err error

	// EmbedCalls records the texts passed to Embed, in order.
	EmbedCalls []string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if v, ok := p.Vectors[text]; ok {
		return v, nil
	}
	return p.Default, nil
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }
