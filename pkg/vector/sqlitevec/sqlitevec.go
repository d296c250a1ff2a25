// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
//
// All namespaces share one table. Similarity is computed with
// vec_distance_cosine over the rows of a single namespace.
type Driver struct {
	db         *sql.DB
	dimensions uint
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	return &Driver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

var _ vector.Driver = (*Driver)(nil)

// EnsureReady verifies the extension and creates the records table.
func (d *Driver) EnsureReady(ctx context.Context) error {
	var vecVersion string
	if err := d.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vec_records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding BLOB NOT NULL,
			UNIQUE(namespace, doc_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}

	d.logger.Debug("sqlite-vec vector driver ready",
		"dimensions", d.dimensions,
		"vec_version", vecVersion,
	)

	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *Driver) checkDimensions(v []float32) error {
	if uint(len(v)) != d.dimensions {
		return fmt.Errorf("%w: got %d, want %d", vector.ErrDimensionMismatch, len(v), d.dimensions)
	}
	return nil
}

// Upsert stores records, replacing rows with the same namespace and ID.
func (d *Driver) Upsert(ctx context.Context, ns string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := d.checkDimensions(r.Values); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}

		meta, err := json.Marshal(r.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vec_records(namespace, doc_id, metadata, embedding)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, doc_id) DO UPDATE SET
				metadata = excluded.metadata,
				embedding = excluded.embedding
		`, ns, r.ID, string(meta), serializeFloat32(r.Values)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("upserted records to sqlite-vec",
		"namespace", ns,
		"count", len(records),
	)

	return nil
}

func scanRecord(docID, meta string, blob []byte) (vector.Record, error) {
	r := vector.Record{ID: docID, Metadata: vector.Metadata{}}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return r, fmt.Errorf("decoding metadata for %s: %w", docID, err)
	}

	values, err := deserializeFloat32(blob)
	if err != nil {
		return r, fmt.Errorf("decoding embedding for %s: %w", docID, err)
	}
	r.Values = values
	return r, nil
}

// Fetch returns the records of ns with the given IDs.
func (d *Driver) Fetch(ctx context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	result := make(map[string]vector.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, ns)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT doc_id, metadata, embedding
		FROM vec_records
		WHERE namespace = ? AND doc_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			docID, meta string
			blob        []byte
		)
		if err := rows.Scan(&docID, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		r, err := scanRecord(docID, meta, blob)
		if err != nil {
			return nil, err
		}
		result[docID] = r
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return result, nil
}

// ListIDs uses the last returned rowid as its cursor.
func (d *Driver) ListIDs(ctx context.Context, ns string, cursor string, limit int) ([]string, string, error) {
	var after int64
	if cursor != "" {
		var err error
		after, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
	}

	if limit <= 0 {
		limit = math.MaxInt32
	}

	// One extra row tells whether another page exists.
	rows, err := d.db.QueryContext(ctx, `
		SELECT rowid, doc_id
		FROM vec_records
		WHERE namespace = ? AND rowid > ?
		ORDER BY rowid
		LIMIT ?
	`, ns, after, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var (
		ids     []string
		lastRow int64
		more    bool
	)
	for rows.Next() {
		var (
			rowID int64
			docID string
		)
		if err := rows.Scan(&rowID, &docID); err != nil {
			return nil, "", fmt.Errorf("scanning id: %w", err)
		}
		if len(ids) == limit {
			more = true
			break
		}
		ids = append(ids, docID)
		lastRow = rowID
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating ids: %w", err)
	}

	next := ""
	if more {
		next = strconv.FormatInt(lastRow, 10)
	}
	return ids, next, nil
}

// Query finds the topK records of ns closest to vec by cosine distance.
func (d *Driver) Query(ctx context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	if err := d.checkDimensions(vec); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			doc_id,
			metadata,
			embedding,
			vec_distance_cosine(embedding, ?) AS distance
		FROM vec_records
		WHERE namespace = ?
		ORDER BY distance
		LIMIT ?
	`, serializeFloat32(vec), ns, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var (
			docID, meta string
			blob        []byte
			distance    float64
		)
		if err := rows.Scan(&docID, &meta, &blob, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		r, err := scanRecord(docID, meta, blob)
		if err != nil {
			return nil, err
		}

		matches = append(matches, vector.Match{
			Record: r,
			Score:  1 - distance,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		"namespace", ns,
		"results", len(matches),
	)

	return matches, nil
}

// DeleteNamespace removes every record of ns.
func (d *Driver) DeleteNamespace(ctx context.Context, ns string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM vec_records WHERE namespace = ?`, ns)
	if err != nil {
		return fmt.Errorf("deleting namespace %s: %w", ns, err)
	}

	n, _ := res.RowsAffected()
	d.logger.Debug("deleted namespace from sqlite-vec",
		"namespace", ns,
		"count", n,
	)

	return nil
}

// Stats reports the number of records in ns.
func (d *Driver) Stats(ctx context.Context, ns string) (vector.Stats, error) {
	stats := vector.Stats{Namespace: ns}

	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vec_records WHERE namespace = ?`, ns,
	).Scan(&stats.Count); err != nil {
		return stats, fmt.Errorf("counting namespace %s: %w", ns, err)
	}

	if stats.Count > 0 {
		stats.Dimensions = int(d.dimensions)
	}

	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}
