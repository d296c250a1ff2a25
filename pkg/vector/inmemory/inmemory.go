// Package inmemory provides a map-backed vector.Driver. Queries are exact
// brute-force cosine scans.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

type namespace struct {
	// order holds IDs in first-insert order so ListIDs pages are stable
	order   []string
	records map[string]vector.Record
}

// Driver implements vector.Driver in process memory.
type Driver struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{namespaces: make(map[string]*namespace)}
}

var _ vector.Driver = (*Driver)(nil)

func copyRecord(r vector.Record) vector.Record {
	return vector.Record{
		ID:       r.ID,
		Values:   slices.Clone(r.Values),
		Metadata: r.Metadata.Clone(),
	}
}

func (d *Driver) Upsert(_ context.Context, ns string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.namespaces[ns]
	if !ok {
		n = &namespace{records: make(map[string]vector.Record)}
		d.namespaces[ns] = n
	}

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record in namespace %s has empty id", ns)
		}
		if _, exists := n.records[r.ID]; !exists {
			n.order = append(n.order, r.ID)
		}
		n.records[r.ID] = copyRecord(r)
	}

	return nil
}

func (d *Driver) Fetch(_ context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make(map[string]vector.Record, len(ids))
	n, ok := d.namespaces[ns]
	if !ok {
		return result, nil
	}

	for _, id := range ids {
		if r, ok := n.records[id]; ok {
			result[id] = copyRecord(r)
		}
	}

	return result, nil
}

// ListIDs uses the decimal offset into the insertion order as its cursor.
func (d *Driver) ListIDs(_ context.Context, ns string, cursor string, limit int) ([]string, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.namespaces[ns]
	if !ok {
		return nil, "", nil
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	if start >= len(n.order) {
		return nil, "", nil
	}

	if limit <= 0 {
		limit = len(n.order)
	}

	end := min(start+limit, len(n.order))
	ids := slices.Clone(n.order[start:end])

	next := ""
	if end < len(n.order) {
		next = strconv.Itoa(end)
	}

	return ids, next, nil
}

func (d *Driver) Query(_ context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.namespaces[ns]
	if !ok || topK <= 0 {
		return nil, nil
	}

	matches := make([]vector.Match, 0, len(n.records))
	for _, id := range n.order {
		r := n.records[id]
		matches = append(matches, vector.Match{
			Record: copyRecord(r),
			Score:  vector.Cosine(vec, r.Values),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

func (d *Driver) DeleteNamespace(_ context.Context, ns string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.namespaces, ns)
	return nil
}

func (d *Driver) Stats(_ context.Context, ns string) (vector.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := vector.Stats{Namespace: ns}
	n, ok := d.namespaces[ns]
	if !ok {
		return stats, nil
	}

	stats.Count = len(n.records)
	for _, r := range n.records {
		stats.Dimensions = len(r.Values)
		break
	}

	return stats, nil
}

// EnsureReady is a no-op for the in-memory driver.
func (d *Driver) EnsureReady(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
