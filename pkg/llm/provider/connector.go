package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrNoAPIKey is returned by Connect when a provider needs a key and none is
// configured.
var ErrNoAPIKey = errors.New("no API key configured")

// KeySource resolves the API key of a provider. An empty key with a nil
// error means none is configured.
type KeySource interface {
	ResolveKey(provider string) (string, error)
}

// Connector hands out ready-to-use providers by name.
type Connector interface {
	Connect(name string) (Provider, error)
}

// Factory builds a provider by name. New is the default.
type Factory func(name string, opts Options) (Provider, error)

// Catalog connects providers using stored credentials.
type Catalog struct {
	Keys KeySource

	// Factory defaults to New.
	Factory Factory

	// BaseURLs overrides the upstream URL per provider name.
	BaseURLs map[string]string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

var _ Connector = (*Catalog)(nil)

// Connect resolves the key of name and builds its provider.
func (c *Catalog) Connect(name string) (Provider, error) {
	var key string
	if c.Keys != nil {
		k, err := c.Keys.ResolveKey(name)
		if err != nil {
			return nil, fmt.Errorf("resolving key for %s: %w", name, err)
		}
		key = k
	}

	factory := c.Factory
	if factory == nil {
		factory = New
	}

	p, err := factory(name, Options{
		APIKey:     key,
		BaseURL:    c.BaseURLs[name],
		HTTPClient: c.HTTPClient,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, err
	}

	if p.RequiresKey() && key == "" {
		return nil, fmt.Errorf("%w for provider: %s", ErrNoAPIKey, name)
	}

	return p, nil
}
