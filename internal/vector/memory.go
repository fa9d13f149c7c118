package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/mentis/internal/models"
)

// MemoryStore keeps every collection in memory and searches by brute-force cosine similarity.
// When created with a snapshot path it loads that file on open and writes it back on Close.
type MemoryStore struct {
	path        string
	collections map[string]*memoryCollection
	mu          sync.RWMutex
}

type memoryCollection struct {
	dimensions int
	order      []string
	records    map[string]memoryRecord
}

type memoryRecord struct {
	Record
	unit []float32
}

// NewMemoryStore returns an empty store, or the contents of the snapshot at path if it exists.
func NewMemoryStore(path string) (*MemoryStore, error) {
	m := &MemoryStore{path: path, collections: make(map[string]*memoryCollection)}
	if err := m.Load(path); err != nil {
		return nil, &models.StorageError{Op: "load snapshot", Err: err}
	}
	return m, nil
}

func newMemoryCollection(dim int) *memoryCollection {
	return &memoryCollection{dimensions: dim, records: make(map[string]memoryRecord)}
}

func (c *memoryCollection) put(r Record) {
	stored := Record{ID: r.ID, Text: r.Text, Vector: append([]float32(nil), r.Vector...), Metadata: copyMeta(r.Metadata)}
	if _, ok := c.records[r.ID]; !ok {
		c.order = append(c.order, r.ID)
	}
	c.records[r.ID] = memoryRecord{Record: stored, unit: normalized(r.Vector)}
}

func checkRecords(collection string, dim int, records []Record) error {
	for _, r := range records {
		if r.ID == "" {
			return &models.StorageError{Op: "write", Collection: collection, Err: fmt.Errorf("record id is empty")}
		}
		if len(r.Vector) != dim {
			return &models.StorageError{Op: "write", Collection: collection,
				Err: fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", r.ID, len(r.Vector), dim)}
		}
	}
	return nil
}

// Write upserts records into collection, creating it on first write.
func (m *MemoryStore) Write(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if ok && len(c.order) == 0 {
		ok = false
	}
	dim := len(records[0].Vector)
	if ok {
		dim = c.dimensions
	}
	if err := checkRecords(collection, dim, records); err != nil {
		return err
	}
	if !ok {
		c = newMemoryCollection(dim)
		m.collections[collection] = c
	}
	for _, r := range records {
		c.put(r)
	}
	return nil
}

// Replace swaps collection for records. An empty records slice leaves an empty collection behind.
func (m *MemoryStore) Replace(ctx context.Context, collection string, records []Record) error {
	dim := 0
	if len(records) > 0 {
		dim = len(records[0].Vector)
	}
	if err := checkRecords(collection, dim, records); err != nil {
		return err
	}
	c := newMemoryCollection(dim)
	for _, r := range records {
		c.put(r)
	}
	m.mu.Lock()
	m.collections[collection] = c
	m.mu.Unlock()
	return nil
}

// Query returns the k records most similar to query.
func (m *MemoryStore) Query(ctx context.Context, collection string, query []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok || len(c.order) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != c.dimensions {
		return nil, &models.StorageError{Op: "query", Collection: collection,
			Err: fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)}
	}
	q := normalized(query)
	hits := make([]Hit, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		hits = append(hits, Hit{ID: id, Score: InnerProduct(q, r.unit), Text: r.Text, Metadata: copyMeta(r.Metadata)})
	}
	SortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Get returns stored records by id, skipping ids that are not present.
func (m *MemoryStore) Get(ctx context.Context, collection string, ids []string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, Record{ID: r.ID, Text: r.Text, Vector: append([]float32(nil), r.Vector...), Metadata: copyMeta(r.Metadata)})
		}
	}
	return out, nil
}

// List returns the collection's records in insertion order.
func (m *MemoryStore) List(ctx context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	c, ok := m.collections[collection]
	var ids []string
	if ok {
		ids = append(ids, c.order...)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.Get(ctx, collection, ids)
}

// Count returns the number of records in collection.
func (m *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.order), nil
	}
	return 0, nil
}

// Collections lists collections sorted by name.
func (m *MemoryStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CollectionInfo, 0, len(m.collections))
	for name, c := range m.collections {
		out = append(out, CollectionInfo{Name: name, Dimensions: c.dimensions, Count: len(c.order)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Drop removes collection.
func (m *MemoryStore) Drop(ctx context.Context, collection string) error {
	m.mu.Lock()
	delete(m.collections, collection)
	m.mu.Unlock()
	return nil
}

// Close writes the snapshot when the store was opened with a path.
func (m *MemoryStore) Close() error {
	if err := m.Save(m.path); err != nil {
		return &models.StorageError{Op: "save snapshot", Err: err}
	}
	return nil
}

// Save writes all collections to path. Format, little endian: collection count (4), then per
// collection: name, dimension (4), record count (4), and per record: id, text, metadata JSON,
// vector (dimension*4 bytes). Strings are a 4-byte length followed by bytes.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := m.writeSnapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryStore) writeSnapshot(w io.Writer) error {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return fmt.Errorf("write collection count: %w", err)
	}
	for _, name := range names {
		c := m.collections[name]
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(c.dimensions), uint32(len(c.order))}); err != nil {
			return fmt.Errorf("write collection header: %w", err)
		}
		for _, id := range c.order {
			r := c.records[id]
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			for _, s := range []string{r.ID, r.Text, string(meta)} {
				if err := writeString(w, s); err != nil {
					return err
				}
			}
			if _, err := w.Write(float32SliceToBytes(r.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load replaces the in-memory contents with the snapshot at path.
// A missing file is not an error and leaves the store unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	return m.readSnapshot(&io.LimitedReader{R: f, N: info.Size()})
}

// readSnapshot decodes a snapshot from r. Lengths read from the file are checked against the
// bytes left in r before anything is allocated for them.
func (m *MemoryStore) readSnapshot(r *io.LimitedReader) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read collection count: %w", err)
	}
	// every collection takes at least a name length and a header
	if int64(n)*12 > r.N {
		return fmt.Errorf("corrupt snapshot: %d collections in %d bytes", n, r.N)
	}
	loaded := make(map[string]*memoryCollection, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return err
		}
		var hdr [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return fmt.Errorf("read collection header: %w", err)
		}
		if int64(hdr[0])*4 > r.N {
			return fmt.Errorf("corrupt snapshot: dimension %d exceeds remaining %d bytes", hdr[0], r.N)
		}
		c := newMemoryCollection(int(hdr[0]))
		buf := make([]byte, c.dimensions*4)
		for j := uint32(0); j < hdr[1]; j++ {
			var fields [3]string
			for k := range fields {
				if fields[k], err = readString(r); err != nil {
					return err
				}
			}
			var meta map[string]string
			if err := json.Unmarshal([]byte(fields[2]), &meta); err != nil {
				return fmt.Errorf("decode metadata: %w", err)
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			c.put(Record{ID: fields[0], Text: fields[1], Metadata: meta, Vector: bytesToFloat32Slice(buf)})
		}
		loaded[name] = c
	}
	m.mu.Lock()
	m.collections = loaded
	m.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r *io.LimitedReader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read length: %w", err)
	}
	if int64(n) > r.N {
		return "", fmt.Errorf("corrupt snapshot: string length %d exceeds remaining %d bytes", n, r.N)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
