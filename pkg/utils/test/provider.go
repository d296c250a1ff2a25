package testutils

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
)

// MockProvider is a provider.Provider that replays a fixed chunk sequence
// and records every request.
type MockProvider struct {
	mu sync.Mutex

	ProviderName string
	NeedsKey     bool
	ModelList    []string

	// Chunks is replayed by every Stream call.
	Chunks []llm.Chunk

	requests []provider.Request
}

// NewMockProvider creates a provider that streams the given text as content
// followed by done.
func NewMockProvider(name string, text ...string) *MockProvider {
	chunks := make([]llm.Chunk, 0, len(text)+1)
	for _, t := range text {
		chunks = append(chunks, llm.ContentChunk(t))
	}
	chunks = append(chunks, llm.DoneChunk(""))

	return &MockProvider{
		ProviderName: name,
		NeedsKey:     true,
		ModelList:    []string{"mock-model"},
		Chunks:       chunks,
	}
}

var _ provider.Provider = (*MockProvider)(nil)

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) RequiresKey() bool { return m.NeedsKey }

func (m *MockProvider) Models() []string { return m.ModelList }

func (m *MockProvider) Stream(_ context.Context, req provider.Request) iter.Seq[llm.Chunk] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	chunks := append([]llm.Chunk(nil), m.Chunks...)
	m.mu.Unlock()

	return func(yield func(llm.Chunk) bool) {
		for _, c := range chunks {
			if !yield(c) {
				return
			}
		}
	}
}

// Requests returns every request passed to Stream.
func (m *MockProvider) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Request(nil), m.requests...)
}

// LastRequest returns the most recent request, or the zero request.
func (m *MockProvider) LastRequest() provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return provider.Request{}
	}
	return m.requests[len(m.requests)-1]
}

// ProviderSet is a provider.Connector over a fixed set of providers. Names
// missing from the set report provider.ErrNoAPIKey.
type ProviderSet map[string]provider.Provider

func (s ProviderSet) Connect(name string) (provider.Provider, error) {
	p, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w for provider: %s", provider.ErrNoAPIKey, name)
	}
	return p, nil
}
