// Package chromem provides an embedded vector driver backed by chromem-go.
// Each namespace is one chromem collection, optionally persisted to disk.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// DefaultCollectionPrefix prefixes every per-namespace collection name.
const DefaultCollectionPrefix = "chatmerge"

// errNoEmbedder rejects any attempt by chromem to embed text itself.
var errNoEmbedder = errors.New("chromem collections only accept precomputed embeddings")

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Config holds configuration for the chromem driver.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips the persisted collection files.
	Compress bool

	// CollectionPrefix prefixes each namespace's collection name.
	CollectionPrefix string

	// Dimensions is the embedding size. It is needed to enumerate a
	// collection, which chromem only exposes through similarity queries.
	Dimensions uint
}

// Driver implements vector.Driver on top of a chromem.DB.
type Driver struct {
	// mu serializes collection creation and deletion against reads
	mu sync.RWMutex
	db *chromem.DB

	prefix     string
	dimensions int
	logger     *slog.Logger
}

// NewDriver opens or creates the chromem database.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("chromem embedding dimensions cannot be 0, must be configured")
	}

	prefix := c.CollectionPrefix
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}

	var db *chromem.DB
	if c.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(c.Path, c.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", c.Path, err)
		}
	}

	logger.Info("chromem vector driver initialized",
		"path", c.Path,
		"dimensions", c.Dimensions,
	)

	return &Driver{
		db:         db,
		prefix:     prefix,
		dimensions: int(c.Dimensions),
		logger:     logger,
	}, nil
}

var _ vector.Driver = (*Driver)(nil)

func (d *Driver) collectionName(ns string) string {
	return d.prefix + "-" + ns
}

// existing returns the collection for ns, or nil when none was created.
func (d *Driver) existing(ns string) *chromem.Collection {
	return d.db.GetCollection(d.collectionName(ns), noEmbed)
}

// EnsureReady is a no-op: the database is opened by NewDriver.
func (d *Driver) EnsureReady(context.Context) error {
	return nil
}

func (d *Driver) Upsert(ctx context.Context, ns string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	col, err := d.db.GetOrCreateCollection(d.collectionName(ns), nil, noEmbed)
	if err != nil {
		return fmt.Errorf("getting or creating collection for %s: %w", ns, err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if len(r.Values) != d.dimensions {
			return fmt.Errorf("record %s: %w: got %d, want %d", r.ID, vector.ErrDimensionMismatch, len(r.Values), d.dimensions)
		}
		meta := r.Metadata.Clone()
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  meta,
			Embedding: slices.Clone(r.Values),
			Content:   meta[vector.MetaContent],
		}
	}

	// AddDocuments overwrites documents that share an ID.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", ns, err)
	}

	d.logger.Debug("upserted records to chromem", "namespace", ns, "count", len(records))
	return nil
}

func toRecord(id string, meta map[string]string, embedding []float32) vector.Record {
	return vector.Record{
		ID:       id,
		Values:   slices.Clone(embedding),
		Metadata: vector.Metadata(meta).Clone(),
	}
}

func (d *Driver) Fetch(ctx context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make(map[string]vector.Record, len(ids))
	col := d.existing(ns)
	if col == nil {
		return result, nil
	}

	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			// unknown IDs are reported as errors by chromem
			continue
		}
		result[id] = toRecord(doc.ID, doc.Metadata, doc.Embedding)
	}

	return result, nil
}

// allIDs enumerates a collection with one full-size similarity query
// against a basis vector and returns the IDs sorted.
func (d *Driver) allIDs(ctx context.Context, col *chromem.Collection) ([]string, error) {
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	probe := make([]float32, d.dimensions)
	probe[0] = 1

	results, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("enumerating collection: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	slices.Sort(ids)
	return ids, nil
}

// ListIDs pages over the sorted IDs of ns using a decimal offset cursor.
func (d *Driver) ListIDs(ctx context.Context, ns string, cursor string, limit int) ([]string, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	col := d.existing(ns)
	if col == nil {
		return nil, "", nil
	}

	ids, err := d.allIDs(ctx, col)
	if err != nil {
		return nil, "", err
	}

	if start >= len(ids) {
		return nil, "", nil
	}
	if limit <= 0 {
		limit = len(ids)
	}

	end := min(start+limit, len(ids))
	next := ""
	if end < len(ids) {
		next = strconv.Itoa(end)
	}
	return ids[start:end], next, nil
}

func (d *Driver) Query(ctx context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vec) != d.dimensions {
		return nil, fmt.Errorf("query: %w: got %d, want %d", vector.ErrDimensionMismatch, len(vec), d.dimensions)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	col := d.existing(ns)
	if col == nil {
		return nil, nil
	}

	n := min(topK, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", ns, err)
	}

	matches := make([]vector.Match, len(results))
	for i, r := range results {
		matches[i] = vector.Match{
			Record: toRecord(r.ID, r.Metadata, r.Embedding),
			Score:  float64(r.Similarity),
		}
	}

	d.logger.Debug("queried chromem", "namespace", ns, "results", len(matches))
	return matches, nil
}

func (d *Driver) DeleteNamespace(_ context.Context, ns string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.existing(ns) == nil {
		return nil
	}

	if err := d.db.DeleteCollection(d.collectionName(ns)); err != nil {
		return fmt.Errorf("deleting collection for %s: %w", ns, err)
	}

	d.logger.Debug("deleted chromem collection", "namespace", ns)
	return nil
}

func (d *Driver) Stats(_ context.Context, ns string) (vector.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := vector.Stats{Namespace: ns}
	col := d.existing(ns)
	if col == nil {
		return stats, nil
	}

	stats.Count = col.Count()
	if stats.Count > 0 {
		stats.Dimensions = d.dimensions
	}
	return stats, nil
}

// Close is a no-op: persistent chromem databases write through on every change.
func (d *Driver) Close() error {
	return nil
}
