// Package storage provides the SQLite-backed vector store and the store factory.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mentis/internal/models"
	"github.com/hyperjump/mentis/internal/vector"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStore implements vector.Store on a single SQLite file. Similarity is computed by
// the sqlite-vec vec_distance_cosine function.
type SQLiteStore struct {
	db *sql.DB
}

var _ vector.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_position ON records(collection, position);
	`
	_, err := db.Exec(schema)
	return err
}

// Write upserts records, keeping the original position of ids already stored.
func (s *SQLiteStore) Write(ctx context.Context, collection string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, "write", collection, func(tx *sql.Tx) error {
		dim, exists, err := collectionDims(ctx, tx, collection)
		if err != nil {
			return err
		}
		// An emptied collection takes its dimension from the next write.
		if !exists || dim == 0 {
			dim = len(records[0].Vector)
		}
		if err := checkDims(dim, records); err != nil {
			return err
		}
		if err := touchCollection(ctx, tx, collection, dim); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM records WHERE collection = ?`, collection,
		).Scan(&next); err != nil {
			return err
		}
		return insertRecords(ctx, tx, collection, next, records,
			`ON CONFLICT(collection, id) DO UPDATE SET
			 text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding`)
	})
}

// Replace deletes the collection and writes records in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, collection string, records []vector.Record) error {
	dim := 0
	if len(records) > 0 {
		dim = len(records[0].Vector)
	}
	if err := checkDims(dim, records); err != nil {
		return &models.StorageError{Op: "replace", Collection: collection, Err: err}
	}
	return s.inTx(ctx, "replace", collection, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
			return err
		}
		if err := touchCollection(ctx, tx, collection, dim); err != nil {
			return err
		}
		return insertRecords(ctx, tx, collection, 0, records, "")
	})
}

// Query ranks the collection by cosine similarity to query.
func (s *SQLiteStore) Query(ctx context.Context, collection string, query []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, exists, err := collectionDims(ctx, s.db, collection)
	if err != nil {
		return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
	}
	if !exists {
		return nil, nil
	}
	if dim != 0 && len(query) != dim {
		return nil, &models.StorageError{Op: "query", Collection: collection,
			Err: fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), dim)}
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, 1.0 - vec_distance_cosine(embedding, ?) AS score
		 FROM records WHERE collection = ?
		 ORDER BY score DESC, id ASC
		 LIMIT ?`, blob, collection, k,
	)
	if err != nil {
		return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var h vector.Hit
		var meta sql.NullString
		if err := rows.Scan(&h.ID, &h.Text, &meta, &h.Score); err != nil {
			return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
		}
		if h.Metadata, err = decodeMeta(meta); err != nil {
			return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "query", Collection: collection, Err: err}
	}
	return hits, nil
}

// Get returns the stored records with the given ids, in the order requested.
func (s *SQLiteStore) Get(ctx context.Context, collection string, ids []string) ([]vector.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding FROM records
		 WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, &models.StorageError{Op: "get", Collection: collection, Err: err}
	}
	defer rows.Close()

	byID := make(map[string]vector.Record, len(ids))
	for rows.Next() {
		var r vector.Record
		var meta sql.NullString
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Text, &meta, &blob); err != nil {
			return nil, &models.StorageError{Op: "get", Collection: collection, Err: err}
		}
		if r.Metadata, err = decodeMeta(meta); err != nil {
			return nil, &models.StorageError{Op: "get", Collection: collection, Err: err}
		}
		r.Vector = decodeFloat32(blob)
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "get", Collection: collection, Err: err}
	}
	out := make([]vector.Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// List returns the collection's records ordered by position.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]vector.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding FROM records WHERE collection = ? ORDER BY position`, collection)
	if err != nil {
		return nil, &models.StorageError{Op: "list", Collection: collection, Err: err}
	}
	defer rows.Close()
	var out []vector.Record
	for rows.Next() {
		var r vector.Record
		var meta sql.NullString
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Text, &meta, &blob); err != nil {
			return nil, &models.StorageError{Op: "list", Collection: collection, Err: err}
		}
		if r.Metadata, err = decodeMeta(meta); err != nil {
			return nil, &models.StorageError{Op: "list", Collection: collection, Err: err}
		}
		r.Vector = decodeFloat32(blob)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list", Collection: collection, Err: err}
	}
	return out, nil
}

// Count returns the number of records in collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, &models.StorageError{Op: "count", Collection: collection, Err: err}
	}
	return n, nil
}

// Collections lists collections with their record counts.
func (s *SQLiteStore) Collections(ctx context.Context) ([]vector.CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name, c.dimensions, COUNT(r.id)
		 FROM collections c LEFT JOIN records r ON r.collection = c.name
		 GROUP BY c.name, c.dimensions ORDER BY c.name`)
	if err != nil {
		return nil, &models.StorageError{Op: "list collections", Err: err}
	}
	defer rows.Close()
	var out []vector.CollectionInfo
	for rows.Next() {
		var ci vector.CollectionInfo
		if err := rows.Scan(&ci.Name, &ci.Dimensions, &ci.Count); err != nil {
			return nil, &models.StorageError{Op: "list collections", Err: err}
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

// Drop removes a collection and its records.
func (s *SQLiteStore) Drop(ctx context.Context, collection string) error {
	return s.inTx(ctx, "drop", collection, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection)
		return err
	})
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, op, collection string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &models.StorageError{Op: op, Collection: collection, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return &models.StorageError{Op: op, Collection: collection, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: op, Collection: collection, Err: err}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func collectionDims(ctx context.Context, q queryer, collection string) (int, bool, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimensions FROM collections WHERE name = ?`, collection).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

func touchCollection(ctx context.Context, tx *sql.Tx, collection string, dim int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, dimensions, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET dimensions = excluded.dimensions, updated_at = excluded.updated_at`,
		collection, dim, time.Now().UTC())
	return err
}

func checkDims(dim int, records []vector.Record) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record id is empty")
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, collection string, position int, records []vector.Record, conflict string) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, position, text, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?) `+conflict)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range records {
		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.ID, position+i, r.Text, string(meta), blob); err != nil {
			return err
		}
	}
	return nil
}

func decodeMeta(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func decodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
