// Package vectorutils wires configured vector backends into a vector.Registry.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/papercomputeco/chatmerge/pkg/config"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/vector/chroma"
	"github.com/papercomputeco/chatmerge/pkg/vector/chromem"
	"github.com/papercomputeco/chatmerge/pkg/vector/inmemory"
	"github.com/papercomputeco/chatmerge/pkg/vector/qdrant"
	"github.com/papercomputeco/chatmerge/pkg/vector/sqlitevec"
)

// Supported vector store provider names.
const (
	ProviderMemory    = "memory"
	ProviderSQLiteVec = "sqlite-vec"
	ProviderChroma    = "chroma"
	ProviderChromem   = "chromem"
	ProviderQdrant    = "qdrant"
)

// SupportedProviders returns every provider name accepted by NewFactory.
func SupportedProviders() []string {
	return []string{ProviderMemory, ProviderSQLiteVec, ProviderChroma, ProviderChromem, ProviderQdrant}
}

// KeyResolver looks up API keys by provider name.
type KeyResolver interface {
	ResolveKey(provider string) (string, error)
}

// NewFactory returns a factory that builds any supported backend.
func NewFactory(logger *slog.Logger) vector.Factory {
	return func(_ context.Context, cred vector.Credential) (vector.Driver, error) {
		return NewVectorDriver(cred, logger)
	}
}

// NewVectorDriver builds the driver described by cred.
func NewVectorDriver(cred vector.Credential, logger *slog.Logger) (vector.Driver, error) {
	switch cred.Provider {
	case ProviderMemory:
		return inmemory.NewDriver(), nil

	case ProviderSQLiteVec:
		path := cred.Path
		if path == "" {
			path = ":memory:"
		} else if filepath.Ext(path) == "" {
			path = filepath.Join(path, "vectors.db")
		}
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     path,
			Dimensions: cred.Dimensions,
		}, logger)

	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:              cred.Target,
			CollectionPrefix: cred.Collection,
			APIKey:           cred.APIKey,
		}, logger)

	case ProviderChromem:
		return chromem.NewDriver(chromem.Config{
			Path:             cred.Path,
			CollectionPrefix: cred.Collection,
			Dimensions:       cred.Dimensions,
		}, logger)

	case ProviderQdrant:
		return qdrant.NewDriver(qdrant.Config{
			Target:     cred.Target,
			APIKey:     cred.APIKey,
			Collection: cred.Collection,
			Dimensions: cred.Dimensions,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cred.Provider)
	}
}

// NewCredentialSource derives the vector credential from configuration on
// every call, so keys stored after startup are picked up. An empty provider
// reports vector.ErrNotConfigured. defaultPath is used by the embedded
// backends when no path is configured.
func NewCredentialSource(cfg *config.Config, defaultPath string, keys KeyResolver) vector.CredentialSource {
	return func(context.Context) (vector.Credential, error) {
		vs := cfg.VectorStore
		if vs.Provider == "" {
			return vector.Credential{}, vector.ErrNotConfigured
		}

		if !slices.Contains(SupportedProviders(), vs.Provider) {
			return vector.Credential{}, fmt.Errorf("unsupported vector store provider: %s", vs.Provider)
		}

		cred := vector.Credential{
			Provider:   vs.Provider,
			Target:     vs.Target,
			Path:       vs.Path,
			Collection: vs.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		}

		if cred.Path == "" {
			cred.Path = defaultPath
		}

		if keys != nil && (vs.Provider == ProviderQdrant || vs.Provider == ProviderChroma) {
			key, err := keys.ResolveKey(vs.Provider)
			if err != nil {
				return vector.Credential{}, fmt.Errorf("resolving %s api key: %w", vs.Provider, err)
			}
			cred.APIKey = key
		}

		return cred, nil
	}
}
