// Package qdrant provides a Qdrant vector driver over the gRPC client.
//
// All namespaces live in a single collection. Each point carries its
// namespace and original document ID in the payload, and point IDs are
// UUIDv5 values derived from both.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

const (
	// DefaultCollectionName is the collection used when none is configured.
	DefaultCollectionName = "chatmerge"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadNamespace = "namespace"
	payloadDocID     = "doc_id"
	payloadMetadata  = "metadata"
)

// pointNamespace seeds the UUIDv5 point IDs.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d7b-4b1e-9f3a-2c5d7e9a0b14")

// PointID returns the Qdrant point ID for a record of ns.
func PointID(ns, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(ns+"\x00"+id)).String()
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host:port" or a URL such as "https://xyz.cloud.qdrant.io:6334".
	Target string

	APIKey string

	// Collection defaults to DefaultCollectionName.
	Collection string

	Dimensions uint
}

// Driver implements vector.Driver on a Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	dimensions uint
	logger     *slog.Logger
}

func parseTarget(target string) (host string, port int, useTLS bool, err error) {
	if target == "" {
		return "localhost", DefaultPort, false, nil
	}

	if u, perr := url.Parse(target); perr == nil && u.Host != "" {
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	host, portStr, serr := net.SplitHostPort(target)
	if serr != nil {
		return target, DefaultPort, useTLS, nil
	}

	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, useTLS, nil
}

// NewDriver creates a Qdrant driver. The connection is verified by EnsureReady.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, useTLS, err := parseTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollectionName
	}

	return &Driver{
		client:     client,
		collection: collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

var _ vector.Driver = (*Driver)(nil)

// EnsureReady creates the collection and the namespace payload index.
func (d *Driver) EnsureReady(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", vector.ErrConnection, d.collection, err)
	}

	if !exists {
		if err := d.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: d.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(d.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("creating collection %s: %w", d.collection, err)
		}

		if _, err := d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: d.collection,
			FieldName:      payloadNamespace,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return fmt.Errorf("indexing namespace on %s: %w", d.collection, err)
		}
	}

	d.logger.Info("qdrant vector driver ready",
		"collection", d.collection,
		"dimensions", d.dimensions,
	)
	return nil
}

func namespaceFilter(ns string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadNamespace, ns)},
	}
}

func (d *Driver) Upsert(ctx context.Context, ns string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if uint(len(r.Values)) != d.dimensions {
			return fmt.Errorf("record %s: %w: got %d, want %d", r.ID, vector.ErrDimensionMismatch, len(r.Values), d.dimensions)
		}

		meta, err := json.Marshal(r.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(ns, r.ID)),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadNamespace: ns,
				payloadDocID:     r.ID,
				payloadMetadata:  string(meta),
			}),
		}
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("upserted records to qdrant", "namespace", ns, "count", len(records))
	return nil
}

// decodePayload rebuilds a record from a point payload and vector data.
// DenseValues returns the unnamed dense vector of a point. Servers fill the
// dense oneof; older ones only the flat data field.
func DenseValues(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if data := out.GetDense().GetData(); len(data) > 0 {
		return data
	}
	return out.GetData() //nolint:staticcheck // older servers
}

func decodePayload(payload map[string]*qdrant.Value, values []float32) (vector.Record, error) {
	r := vector.Record{
		ID:       payload[payloadDocID].GetStringValue(),
		Values:   values,
		Metadata: vector.Metadata{},
	}

	if raw := payload[payloadMetadata].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Metadata); err != nil {
			return r, fmt.Errorf("decoding metadata for %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (d *Driver) Fetch(ctx context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	result := make(map[string]vector.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(PointID(ns, id))
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching points: %w", err)
	}

	for _, p := range points {
		r, err := decodePayload(p.GetPayload(), DenseValues(p.GetVectors()))
		if err != nil {
			return nil, err
		}
		result[r.ID] = r
	}

	return result, nil
}

// ListIDs scrolls the namespace. The cursor is the next point ID.
func (d *Driver) ListIDs(ctx context.Context, ns string, cursor string, limit int) ([]string, string, error) {
	if limit <= 0 {
		limit = 256
	}
	l := uint32(limit)

	req := &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Filter:         namespaceFilter(ns),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadDocID),
	}
	if cursor != "" {
		req.Offset = qdrant.NewID(cursor)
	}

	points, offset, err := d.client.ScrollAndOffset(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("scrolling points: %w", err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.GetPayload()[payloadDocID].GetStringValue())
	}

	return ids, offset.GetUuid(), nil
}

func (d *Driver) Query(ctx context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         namespaceFilter(ns),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		r, err := decodePayload(p.GetPayload(), DenseValues(p.GetVectors()))
		if err != nil {
			return nil, err
		}
		matches = append(matches, vector.Match{Record: r, Score: float64(p.GetScore())})
	}

	d.logger.Debug("queried qdrant", "namespace", ns, "results", len(matches))
	return matches, nil
}

func (d *Driver) DeleteNamespace(ctx context.Context, ns string) error {
	wait := true
	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(namespaceFilter(ns)),
	}); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", ns, err)
	}

	d.logger.Debug("deleted namespace from qdrant", "namespace", ns)
	return nil
}

func (d *Driver) Stats(ctx context.Context, ns string) (vector.Stats, error) {
	stats := vector.Stats{Namespace: ns}

	exact := true
	count, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Filter:         namespaceFilter(ns),
		Exact:          &exact,
	})
	if err != nil {
		return stats, fmt.Errorf("counting namespace %s: %w", ns, err)
	}

	stats.Count = int(count)
	if stats.Count > 0 {
		stats.Dimensions = int(d.dimensions)
	}
	return stats, nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
