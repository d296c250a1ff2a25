// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

const (
	// DefaultCollectionPrefix prefixes every per-namespace collection name.
	DefaultCollectionPrefix = "chatmerge"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second

	apiBase = "/api/v2/tenants/default_tenant/databases/default_database"
)

// errCollectionMissing marks a namespace whose collection has not been created.
var errCollectionMissing = errors.New("collection does not exist")

// Driver implements vector.Driver using Chroma's REST API. Each namespace
// maps to its own collection using cosine space.
type Driver struct {
	baseURL    string
	prefix     string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	mu sync.Mutex
	// collections caches namespace -> collection ID
	collections map[string]string
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionPrefix prefixes each namespace's collection name.
	// Defaults to DefaultCollectionPrefix if empty.
	CollectionPrefix string

	// APIKey is sent as the x-chroma-token header when set.
	APIKey string

	// MaxRetries bounds the heartbeat attempts made by EnsureReady.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver. No request is made until
// EnsureReady or the first operation.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	prefix := c.CollectionPrefix
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}

	d := &Driver{
		baseURL: c.URL,
		prefix:  prefix,
		apiKey:  c.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:        logger,
		maxRetries:    c.MaxRetries,
		retryDelay:    c.RetryDelay,
		maxRetryDelay: c.MaxRetryDelay,
		collections:   make(map[string]string),
	}

	if d.maxRetries <= 0 {
		d.maxRetries = defaultMaxRetries
	}
	if d.retryDelay <= 0 {
		d.retryDelay = defaultRetryDelay
	}
	if d.maxRetryDelay <= 0 {
		d.maxRetryDelay = defaultMaxRetryDelay
	}

	return d, nil
}

var _ vector.Driver = (*Driver)(nil)

// CollectionName returns the Chroma collection that backs ns.
func (d *Driver) CollectionName(ns string) string {
	return d.prefix + "-" + ns
}

// EnsureReady waits for the Chroma heartbeat with exponential backoff.
func (d *Driver) EnsureReady(ctx context.Context) error {
	delay := d.retryDelay

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		resp, err := d.do(ctx, http.MethodGet, "/api/v2/heartbeat", nil)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				d.logger.Info("connected to Chroma", "url", d.baseURL, "prefix", d.prefix)
				return nil
			}
			err = fmt.Errorf("heartbeat status %d", resp.StatusCode)
		}
		lastErr = err

		if attempt == d.maxRetries {
			break
		}

		d.logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = min(delay*2, d.maxRetryDelay)
	}

	return fmt.Errorf("%w: after %d attempts: %v", vector.ErrConnection, d.maxRetries, lastErr)
}

func (d *Driver) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.apiKey != "" {
		req.Header.Set("x-chroma-token", d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

// call sends a JSON request and decodes a 2xx response into out.
func (d *Driver) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := d.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// collection returns the ID of the collection for ns. With create set, the
// collection is created when missing; otherwise errCollectionMissing is returned.
func (d *Driver) collection(ctx context.Context, ns string, create bool) (string, error) {
	d.mu.Lock()
	id, ok := d.collections[ns]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	name := d.CollectionName(ns)

	var col chromaCollection
	var err error
	if create {
		err = d.call(ctx, http.MethodPost, apiBase+"/collections", chromaCreateCollectionRequest{
			Name:        name,
			Metadata:    map[string]any{"hnsw:space": "cosine"},
			GetOrCreate: true,
		}, &col)
	} else {
		err = d.call(ctx, http.MethodGet, apiBase+"/collections/"+url.PathEscape(name), nil, &col)
	}
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.collections[ns] = col.ID
	d.mu.Unlock()

	return col.ID, nil
}

func (d *Driver) Upsert(ctx context.Context, ns string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	id, err := d.collection(ctx, ns, true)
	if err != nil {
		return fmt.Errorf("getting or creating collection for %s: %w", ns, err)
	}

	body := chromaUpsertRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]string, len(records)),
	}
	for i, r := range records {
		body.IDs[i] = r.ID
		body.Embeddings[i] = r.Values
		body.Metadatas[i] = r.Metadata.Clone()
	}

	if err := d.call(ctx, http.MethodPost, apiBase+"/collections/"+id+"/upsert", body, nil); err != nil {
		return fmt.Errorf("upserting records: %w", err)
	}

	d.logger.Debug("upserted records to chroma", "namespace", ns, "count", len(records))
	return nil
}

func (d *Driver) get(ctx context.Context, ns string, req chromaGetRequest) (*chromaGetResponse, error) {
	id, err := d.collection(ctx, ns, false)
	if errors.Is(err, errCollectionMissing) {
		return &chromaGetResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	var resp chromaGetResponse
	if err := d.call(ctx, http.MethodPost, apiBase+"/collections/"+id+"/get", req, &resp); err != nil {
		return nil, fmt.Errorf("getting records: %w", err)
	}
	return &resp, nil
}

func (d *Driver) Fetch(ctx context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	result := make(map[string]vector.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	resp, err := d.get(ctx, ns, chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "embeddings"},
	})
	if err != nil {
		return nil, err
	}

	for i, id := range resp.IDs {
		r := vector.Record{ID: id, Metadata: vector.Metadata{}}
		if i < len(resp.Metadatas) && resp.Metadatas[i] != nil {
			r.Metadata = resp.Metadatas[i]
		}
		if i < len(resp.Embeddings) {
			r.Values = resp.Embeddings[i]
		}
		result[id] = r
	}

	return result, nil
}

// ListIDs uses the decimal record offset as its cursor.
func (d *Driver) ListIDs(ctx context.Context, ns string, cursor string, limit int) ([]string, string, error) {
	offset := 0
	if cursor != "" {
		var err error
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	req := chromaGetRequest{Include: []string{}, Offset: &offset}
	if limit > 0 {
		req.Limit = &limit
	}

	resp, err := d.get(ctx, ns, req)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if limit > 0 && len(resp.IDs) == limit {
		next = strconv.Itoa(offset + len(resp.IDs))
	}
	return resp.IDs, next, nil
}

func (d *Driver) Query(ctx context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	stats, err := d.Stats(ctx, ns)
	if err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return nil, nil
	}

	id, err := d.collection(ctx, ns, false)
	if err != nil {
		return nil, err
	}

	var resp chromaQueryResponse
	if err := d.call(ctx, http.MethodPost, apiBase+"/collections/"+id+"/query", chromaQueryRequest{
		QueryEmbeddings: [][]float32{vec},
		NResults:        min(topK, stats.Count),
		Include:         []string{"metadatas", "distances", "embeddings"},
	}, &resp); err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	// Process first group (we only query with one embedding)
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	matches := make([]vector.Match, 0, len(ids))
	for i, docID := range ids {
		m := vector.Match{Record: vector.Record{ID: docID, Metadata: vector.Metadata{}}}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			m.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Embeddings) > 0 && i < len(resp.Embeddings[0]) {
			m.Values = resp.Embeddings[0][i]
		}
		// cosine space reports distance as 1 - similarity
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Score = 1 - resp.Distances[0][i]
		}
		matches = append(matches, m)
	}

	d.logger.Debug("queried chroma", "namespace", ns, "results", len(matches))
	return matches, nil
}

func (d *Driver) DeleteNamespace(ctx context.Context, ns string) error {
	name := d.CollectionName(ns)

	err := d.call(ctx, http.MethodDelete, apiBase+"/collections/"+url.PathEscape(name), nil, nil)
	if err != nil && !errors.Is(err, errCollectionMissing) {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	d.mu.Lock()
	delete(d.collections, ns)
	d.mu.Unlock()

	d.logger.Debug("deleted chroma collection", "collection", name)
	return nil
}

func (d *Driver) Stats(ctx context.Context, ns string) (vector.Stats, error) {
	stats := vector.Stats{Namespace: ns}

	name := d.CollectionName(ns)
	var col chromaCollection
	err := d.call(ctx, http.MethodGet, apiBase+"/collections/"+url.PathEscape(name), nil, &col)
	if errors.Is(err, errCollectionMissing) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("getting collection %s: %w", name, err)
	}

	d.mu.Lock()
	d.collections[ns] = col.ID
	d.mu.Unlock()

	if err := d.call(ctx, http.MethodGet, apiBase+"/collections/"+col.ID+"/count", nil, &stats.Count); err != nil {
		return stats, fmt.Errorf("counting collection %s: %w", name, err)
	}

	if col.Dimension != nil {
		stats.Dimensions = *col.Dimension
	}
	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}
