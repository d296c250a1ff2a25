package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/papercomputeco/chatmerge/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/gemini"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/ollama"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/openai"
)

// Supported provider type constants
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Gemini    = "gemini"
	Ollama    = "ollama"
)

// ErrUnknownProvider is returned by New for unrecognized provider names.
var ErrUnknownProvider = errors.New("unknown provider")

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{OpenAI, Anthropic, Gemini, Ollama}
}

// Options configures a provider built by New.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a new Provider instance for the given provider type.
func New(providerType string, opts Options) (Provider, error) {
	switch providerType {
	case OpenAI:
		return openai.New(openai.Config{
			APIKey: opts.APIKey, BaseURL: opts.BaseURL, HTTPClient: opts.HTTPClient, Logger: opts.Logger,
		}), nil
	case Anthropic:
		return anthropic.New(anthropic.Config{
			APIKey: opts.APIKey, BaseURL: opts.BaseURL, HTTPClient: opts.HTTPClient, Logger: opts.Logger,
		}), nil
	case Gemini:
		return gemini.New(gemini.Config{
			APIKey: opts.APIKey, BaseURL: opts.BaseURL, HTTPClient: opts.HTTPClient, Logger: opts.Logger,
		}), nil
	case Ollama:
		return ollama.New(ollama.Config{
			BaseURL: opts.BaseURL, HTTPClient: opts.HTTPClient, Logger: opts.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownProvider, providerType, SupportedProviders())
	}
}

// RequiresKey reports whether the named provider needs an API key. Unknown
// providers report true.
func RequiresKey(providerType string) bool {
	p, err := New(providerType, Options{})
	if err != nil {
		return true
	}
	return p.RequiresKey()
}

// AllModels returns the offered models keyed by provider name.
func AllModels() map[string][]string {
	models := make(map[string][]string, len(SupportedProviders()))
	for _, name := range SupportedProviders() {
		p, err := New(name, Options{})
		if err != nil {
			continue
		}
		models[name] = p.Models()
	}
	return models
}
