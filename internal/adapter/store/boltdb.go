package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"docqa/internal/domain"
)

const collectionFile = "collection.db"

var (
	bucketVectors = []byte("vectors")
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// errCorrupt marks persisted state that cannot be trusted and should be
// moved aside rather than repaired.
var errCorrupt = errors.New("corrupt collection file")

// collectionDB is the bbolt file of one collection. Vectors and records live
// in separate buckets keyed by the same big-endian position, and every write
// touches both inside a single transaction.
type collectionDB struct {
	db   *bbolt.DB
	path string
}

// snapshot is the decoded content of a collection file.
type snapshot struct {
	dimension int
	vectors   []float32
	records   []domain.ParagraphRecord
}

func openCollectionDB(dir string, timeout time.Duration) (*collectionDB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collection dir: %w", err)
	}

	path := filepath.Join(dir, collectionFile)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if isCorruptOpenError(err) {
			return nil, fmt.Errorf("%w: %v", errCorrupt, err)
		}
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &collectionDB{db: db, path: path}, nil
}

func isCorruptOpenError(err error) bool {
	return errors.Is(err, bbolt.ErrInvalid) ||
		errors.Is(err, bbolt.ErrChecksum) ||
		errors.Is(err, bbolt.ErrVersionMismatch)
}

func (c *collectionDB) Close() error {
	return c.db.Close()
}

// load decodes the whole collection. Any inconsistency is reported as errCorrupt.
func (c *collectionDB) load() (*snapshot, error) {
	snap := &snapshot{}
	err := c.db.View(func(tx *bbolt.Tx) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}
		snap.dimension = dim

		records := tx.Bucket(bucketRecords)
		vectors := tx.Bucket(bucketVectors)
		if records == nil || vectors == nil {
			return fmt.Errorf("%w: missing buckets", errCorrupt)
		}

		nRecords := records.Stats().KeyN
		nVectors := vectors.Stats().KeyN
		if nRecords != nVectors {
			return fmt.Errorf("%w: %d vectors but %d records", errCorrupt, nVectors, nRecords)
		}
		if nRecords > 0 && dim <= 0 {
			return fmt.Errorf("%w: records without dimension", errCorrupt)
		}

		snap.records = make([]domain.ParagraphRecord, 0, nRecords)
		snap.vectors = make([]float32, 0, nVectors*dim)

		want := uint64(0)
		rc := records.Cursor()
		vc := vectors.Cursor()
		rk, rv := rc.First()
		vk, vv := vc.First()
		for rk != nil {
			if vk == nil || len(rk) != 8 || binary.BigEndian.Uint64(rk) != want || string(rk) != string(vk) {
				return fmt.Errorf("%w: position %d out of step", errCorrupt, want)
			}

			var rec domain.ParagraphRecord
			if err := json.Unmarshal(rv, &rec); err != nil {
				return fmt.Errorf("%w: record %d: %v", errCorrupt, want, err)
			}
			vec, err := decodeVector(vv, dim)
			if err != nil {
				return fmt.Errorf("%w: vector %d: %v", errCorrupt, want, err)
			}

			snap.records = append(snap.records, rec)
			snap.vectors = append(snap.vectors, vec...)

			want++
			rk, rv = rc.Next()
			vk, vv = vc.Next()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// reset drops every vector and record and stores dim as the dimension.
func (c *collectionDB) reset(dim int) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return resetTx(tx, dim)
	})
}

// replace drops every vector and record and writes the batch at dim in one
// transaction.
func (c *collectionDB) replace(dim int, vectors [][]float32, records []domain.ParagraphRecord) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := resetTx(tx, dim); err != nil {
			return err
		}
		return appendTx(tx, 0, dim, vectors, records)
	})
}

// setDimension stores dim without touching vectors or records.
func (c *collectionDB) setDimension(dim int) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return writeDimension(tx, dim)
	})
}

// appendBatch writes vectors and records starting at position start. When
// dim differs from the stored dimension it is written in the same transaction.
func (c *collectionDB) appendBatch(start, dim int, vectors [][]float32, records []domain.ParagraphRecord) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return appendTx(tx, start, dim, vectors, records)
	})
}

func resetTx(tx *bbolt.Tx, dim int) error {
	for _, name := range [][]byte{bucketVectors, bucketRecords} {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to drop bucket %s: %w", name, err)
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", name, err)
		}
	}
	return writeDimension(tx, dim)
}

func appendTx(tx *bbolt.Tx, start, dim int, vectors [][]float32, records []domain.ParagraphRecord) error {
	vb := tx.Bucket(bucketVectors)
	rb := tx.Bucket(bucketRecords)
	if vb == nil || rb == nil {
		return fmt.Errorf("collection buckets not found")
	}

	if err := writeDimension(tx, dim); err != nil {
		return err
	}

	for i := range vectors {
		key := positionKey(start + i)

		data, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", start+i, err)
		}
		if err := rb.Put(key, data); err != nil {
			return err
		}
		if err := vb.Put(key, encodeVector(vectors[i])); err != nil {
			return err
		}
	}
	return nil
}

func readDimension(tx *bbolt.Tx) (int, error) {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return 0, fmt.Errorf("%w: missing meta bucket", errCorrupt)
	}
	data := meta.Get(keyDimension)
	if data == nil {
		return 0, nil
	}
	var dim int
	if err := json.Unmarshal(data, &dim); err != nil || dim < 0 {
		return 0, fmt.Errorf("%w: bad dimension %q", errCorrupt, data)
	}
	return dim, nil
}

func writeDimension(tx *bbolt.Tx, dim int) error {
	data, err := json.Marshal(dim)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(keyDimension, data)
}

func positionKey(pos int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(pos))
	return key
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("expected %d bytes, got %d", 4*dim, len(data))
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
