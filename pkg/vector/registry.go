package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/chatmerge/pkg/logger"
)

// Credential identifies one vector backend. Two equal credentials share a
// driver within a Registry.
type Credential struct {
	Provider   string
	Target     string
	Path       string
	Collection string
	APIKey     string
	Dimensions uint
}

// Key returns the cache key for c. The API key is hashed so it never
// appears in logs.
func (c Credential) Key() string {
	sum := sha256.Sum256([]byte(c.APIKey))
	return strings.Join([]string{
		c.Provider,
		c.Target,
		c.Path,
		c.Collection,
		fmt.Sprint(c.Dimensions),
		hex.EncodeToString(sum[:8]),
	}, "|")
}

// Factory builds a driver for a credential.
type Factory func(ctx context.Context, cred Credential) (Driver, error)

// CredentialSource returns the active credential, or ErrNotConfigured.
type CredentialSource func(ctx context.Context) (Credential, error)

// Registry caches one ready driver per credential.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]Driver

	factory Factory
	source  CredentialSource
	logger  *slog.Logger
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Factory Factory

	// Source is consulted by Resolve. A nil Source is treated as
	// never configured.
	Source CredentialSource

	Logger *slog.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(c RegistryConfig) *Registry {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Registry{
		drivers: make(map[string]Driver),
		factory: c.Factory,
		source:  c.Source,
		logger:  log,
	}
}

var _ Resolver = (*Registry)(nil)

// Resolve returns the driver for the current credential.
func (r *Registry) Resolve(ctx context.Context) (Driver, error) {
	if r.source == nil {
		return nil, ErrNotConfigured
	}

	cred, err := r.source(ctx)
	if err != nil {
		return nil, err
	}

	return r.For(ctx, cred)
}

// For returns the driver for cred, building and readying it on first use.
// A driver that fails EnsureReady is closed and not cached.
func (r *Registry) For(ctx context.Context, cred Credential) (Driver, error) {
	if cred.Provider == "" {
		return nil, ErrNotConfigured
	}

	key := cred.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.drivers[key]; ok {
		return d, nil
	}

	if r.factory == nil {
		return nil, fmt.Errorf("no vector driver factory for provider %q", cred.Provider)
	}

	d, err := r.factory(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("creating %s vector driver: %w", cred.Provider, err)
	}

	if err := d.EnsureReady(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("preparing %s vector driver: %w", cred.Provider, err)
	}

	r.logger.Info("vector driver ready",
		"provider", cred.Provider,
		"target", cred.Target,
		"collection", cred.Collection,
	)

	r.drivers[key] = d
	return d, nil
}

// Close closes every cached driver.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, d := range r.drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.drivers, key)
	}

	return errors.Join(errs...)
}
