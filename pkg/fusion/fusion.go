// Package fusion merges the vector namespaces of several conversations into
// the namespace of a new one.
//
// Fuse walks the sources in order and greedily clusters near-duplicate
// vectors: the first non-empty source seeds a working set, and each later
// vector either folds into its closest working-set entry (when cosine
// similarity reaches the threshold) or is appended as a new entry. The
// outcome depends on source order. Union is the lossless fallback that
// copies every vector without comparison.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

const (
	// DefaultThreshold is the cosine similarity at which two vectors fuse.
	DefaultThreshold = 0.82

	// FetchBatchSize is the page size for listing and fetching source vectors.
	FetchBatchSize = 200

	// UpsertBatchSize is the number of records written per upsert call.
	UpsertBatchSize = 100

	// maxParallelFetch bounds the sources read concurrently.
	maxParallelFetch = 4
)

// Result summarizes a fusion.
type Result struct {
	// Fused counts vectors folded into an existing working-set entry.
	Fused int `json:"fused"`

	// Kept counts vectors of later sources appended as distinct entries.
	Kept int `json:"kept"`

	// Total is the number of records written to the target.
	Total int `json:"total"`
}

// Config configures an Engine.
type Config struct {
	Driver vector.Driver
	Logger *slog.Logger
}

// Engine fuses namespaces held by a single vector driver.
type Engine struct {
	driver vector.Driver
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		driver: cfg.Driver,
		logger: log,
	}
}

// source is the full contents of one source namespace in listing order.
type source struct {
	id      string
	records []vector.Record
}

// Fuse merges sources into target. A threshold of zero or less uses
// DefaultThreshold. If every source is empty the target is left untouched
// and the zero Result is returned. Any fetch or upsert error aborts the
// fusion.
func (e *Engine) Fuse(ctx context.Context, sources []string, target string, threshold float64) (Result, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	loaded, err := e.fetchSources(ctx, sources)
	if err != nil {
		return Result{}, err
	}

	first := -1
	for i, src := range loaded {
		if len(src.records) > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		e.logger.Info("fusion skipped, every source is empty", "target", target, "sources", len(sources))
		return Result{}, nil
	}

	seed := loaded[first]
	working := make([]vector.Record, 0, len(seed.records))
	for _, rec := range seed.records {
		working = append(working, kept(rec, seed.id, target))
	}

	e.logger.Debug("fusion working set seeded", "source", seed.id, "vectors", len(working))

	var result Result
	for _, src := range loaded[first+1:] {
		for _, rec := range src.records {
			best, sim := nearest(working, rec.Values)
			if best >= 0 && sim >= threshold {
				working[best] = fused(working[best], rec, seed.id, src.id, target)
				result.Fused++
				continue
			}

			working = append(working, kept(rec, src.id, target))
			result.Kept++
		}
	}

	if err := e.upsert(ctx, target, working); err != nil {
		return Result{}, err
	}

	result.Total = len(working)

	e.logger.Info("fusion complete",
		"target", target,
		"fused", result.Fused,
		"kept", result.Kept,
		"total", result.Total,
	)

	return result, nil
}

// Union copies every vector of every source into target. Sources that fail
// are logged and skipped. It returns the number of vectors copied, and an
// error only when nothing could be copied because of a failure.
func (e *Engine) Union(ctx context.Context, sources []string, target string) (int, error) {
	var (
		copied int
		errs   []error
	)

	for _, id := range sources {
		records, err := e.fetchAll(ctx, id)
		if err != nil {
			e.logger.Error("union: failed to read source", "source", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(records) == 0 {
			e.logger.Debug("union: source is empty", "source", id)
			continue
		}

		out := make([]vector.Record, 0, len(records))
		for _, rec := range records {
			meta := rec.Metadata.Clone()
			meta[vector.MetaSourceChatID] = id
			if orig, ok := meta[vector.MetaChatID]; ok && orig != "" {
				meta[vector.MetaOriginalChatID] = orig
			} else {
				meta[vector.MetaOriginalChatID] = id
			}
			meta[vector.MetaChatID] = target

			out = append(out, vector.Record{
				ID:       prefixed(id, rec.ID),
				Values:   rec.Values,
				Metadata: meta,
			})
		}

		if err := e.upsert(ctx, target, out); err != nil {
			e.logger.Error("union: failed to write source", "source", id, "error", err)
			errs = append(errs, err)
			continue
		}

		copied += len(out)
		e.logger.Debug("union: copied source", "source", id, "vectors", len(out))
	}

	e.logger.Info("union complete", "target", target, "copied", copied)

	if copied == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return copied, nil
}

// fetchSources reads every source concurrently, preserving source order.
func (e *Engine) fetchSources(ctx context.Context, ids []string) ([]source, error) {
	out := make([]source, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetch)

	for i, id := range ids {
		g.Go(func() error {
			records, err := e.fetchAll(gctx, id)
			if err != nil {
				return err
			}
			out[i] = source{id: id, records: records}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// fetchAll pages through a namespace and returns its records in listing order.
func (e *Engine) fetchAll(ctx context.Context, ns string) ([]vector.Record, error) {
	var (
		records []vector.Record
		cursor  string
	)

	for {
		ids, next, err := e.driver.ListIDs(ctx, ns, cursor, FetchBatchSize)
		if err != nil {
			return nil, fmt.Errorf("listing vectors of %s: %w", ns, err)
		}

		if len(ids) > 0 {
			found, err := e.driver.Fetch(ctx, ns, ids)
			if err != nil {
				return nil, fmt.Errorf("fetching vectors of %s: %w", ns, err)
			}
			for _, id := range ids {
				if rec, ok := found[id]; ok {
					records = append(records, rec)
				}
			}
		}

		if next == "" {
			return records, nil
		}
		cursor = next
	}
}

func (e *Engine) upsert(ctx context.Context, ns string, records []vector.Record) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(records))
		if err := e.driver.Upsert(ctx, ns, records[start:end]); err != nil {
			return fmt.Errorf("upserting vectors into %s: %w", ns, err)
		}
	}
	return nil
}

// nearest returns the index and similarity of the working-set entry closest
// to v, or -1 for an empty set.
func nearest(working []vector.Record, v []float32) (int, float64) {
	best, bestSim := -1, 0.0
	for i, w := range working {
		sim := vector.Cosine(w.Values, v)
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best, bestSim
}

func prefixed(source, id string) string {
	return source + "_" + id
}

func kept(rec vector.Record, sourceID, target string) vector.Record {
	meta := rec.Metadata.Clone()
	meta[vector.MetaType] = vector.TypeKept
	meta[vector.MetaSourceChatID] = sourceID
	meta[vector.MetaChatID] = target

	return vector.Record{
		ID:       prefixed(sourceID, rec.ID),
		Values:   rec.Values,
		Metadata: meta,
	}
}

// fused replaces match with the normalized average of both vectors. The
// metadata is rebuilt from scratch so only provenance and the paired
// contents survive.
func fused(match, rec vector.Record, firstSource, sourceID, target string) vector.Record {
	return vector.Record{
		ID:     match.ID,
		Values: vector.Average(match.Values, rec.Values),
		Metadata: vector.Metadata{
			vector.MetaType:          vector.TypeFused,
			vector.MetaContent:       fmt.Sprintf("[A]: %s\n[B]: %s", match.Metadata[vector.MetaContent], rec.Metadata[vector.MetaContent]),
			vector.MetaSourceAChatID: firstSource,
			vector.MetaSourceBChatID: sourceID,
			vector.MetaChatID:        target,
		},
	}
}
