package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

// Options configures a Store.
type Options struct {
	// OverFetch is the number of raw candidates fetched per requested result
	// before source filtering. Defaults to 3.
	OverFetch int

	// OpenTimeout bounds how long opening a collection file waits for its lock.
	OpenTimeout time.Duration

	Logger *zap.Logger
}

// Store keeps one independent collection per id under root/<id>/.
// Collections are hydrated lazily on first access and cached for the
// lifetime of the Store. Each collection has its own lock, so unrelated
// collections never wait on each other.
type Store struct {
	root        string
	overFetch   int
	openTimeout time.Duration
	logger      *zap.Logger

	mu          sync.Mutex
	collections map[string]*collection
	closed      bool
}

type collection struct {
	id  string
	dir string

	mu      sync.RWMutex
	loaded  bool
	deleted bool
	file    *collectionDB // nil while the collection does not exist
	index   flatIndex
	records []domain.ParagraphRecord
}

// Handle is a point-in-time view of a collection returned by Ensure.
// A Handle with Exists false is a placeholder with no index.
type Handle struct {
	ID        string
	Exists    bool
	Dimension int
	Count     int
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collections dir: %w", err)
	}

	if opts.OverFetch <= 0 {
		opts.OverFetch = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		root:        dir,
		overFetch:   opts.OverFetch,
		openTimeout: opts.OpenTimeout,
		logger:      opts.Logger,
		collections: make(map[string]*collection),
	}, nil
}

var errStoreClosed = errors.New("collection store is closed")

// collection returns the cached entry for id, creating an unloaded one if needed.
func (s *Store) collection(id string) (*collection, error) {
	if err := domain.ValidateCollectionID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStoreClosed
	}
	c, ok := s.collections[id]
	if !ok {
		c = &collection{id: id, dir: filepath.Join(s.root, id)}
		s.collections[id] = c
	}
	return c, nil
}

// write runs fn with the collection loaded and exclusively locked.
// Load failures other than corruption are returned to the caller.
func (s *Store) write(id string, fn func(c *collection) error) error {
	for {
		c, err := s.collection(id)
		if err != nil {
			return err
		}

		c.mu.Lock()
		if c.deleted {
			// Lost a race with Delete; the next lookup creates a fresh entry.
			c.mu.Unlock()
			continue
		}

		err = func() error {
			defer c.mu.Unlock()
			if !c.loaded {
				if err := s.load(c); err != nil {
					return err
				}
			}
			return fn(c)
		}()
		return err
	}
}

// read runs fn with the collection loaded and share-locked. When the
// collection cannot be read it is treated as empty and fn is not called.
func (s *Store) read(id string, fn func(c *collection)) error {
	c, err := s.collection(id)
	if err != nil {
		return err
	}

	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()

	if !loaded {
		c.mu.Lock()
		if !c.loaded && !c.deleted {
			err = s.load(c)
		}
		c.mu.Unlock()
		if err != nil {
			msg := "collection unreadable, treating as empty"
			if bboltTimeout(err) {
				msg = "collection locked by another process, treating as empty"
			}
			s.logger.Warn(msg, zap.String("collection", id), zap.Error(err))
			return nil
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c)
	return nil
}

// load hydrates c from disk. Caller holds c.mu exclusively.
// A missing file leaves c empty; a corrupt one is moved aside and c is left empty.
func (s *Store) load(c *collection) error {
	path := filepath.Join(c.dir, collectionFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			c.loaded = true
			return nil
		}
		return fmt.Errorf("failed to stat collection file: %w", err)
	}

	file, err := openCollectionDB(c.dir, s.openTimeout)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.quarantine(c, err)
			c.loaded = true
			return nil
		}
		return err
	}

	if result, err := file.migrate(); err != nil {
		file.Close()
		return fmt.Errorf("failed to migrate collection %s: %w", c.id, err)
	} else if result.NeedsMigration {
		s.logger.Info("migrated collection",
			zap.String("collection", c.id), zap.String("reason", result.Reason))
	}

	snap, err := file.load()
	if err != nil {
		file.Close()
		if errors.Is(err, errCorrupt) {
			s.quarantine(c, err)
			c.loaded = true
			return nil
		}
		return fmt.Errorf("failed to load collection %s: %w", c.id, err)
	}

	c.file = file
	c.index = flatIndex{dim: snap.dimension, data: snap.vectors}
	c.records = snap.records
	c.loaded = true

	s.logger.Debug("collection loaded",
		zap.String("collection", c.id),
		zap.Int("dimension", snap.dimension),
		zap.Int("records", len(snap.records)))
	return nil
}

// quarantine renames an unreadable collection file so the id can be reused.
func (s *Store) quarantine(c *collection, cause error) {
	path := filepath.Join(c.dir, collectionFile)
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil {
		s.logger.Error("failed to move corrupt collection aside",
			zap.String("collection", c.id), zap.Error(err))
	}
	s.logger.Warn("corrupt collection treated as empty",
		zap.String("collection", c.id),
		zap.String("moved_to", aside),
		zap.Error(cause))
}

// create makes an empty persisted collection at dim. Caller holds c.mu exclusively.
func (s *Store) create(c *collection, dim int) error {
	file, err := openCollectionDB(c.dir, s.openTimeout)
	if err != nil {
		return err
	}
	if _, err := file.migrate(); err != nil {
		file.Close()
		return fmt.Errorf("failed to initialise collection %s: %w", c.id, err)
	}
	if err := file.reset(dim); err != nil {
		file.Close()
		return fmt.Errorf("failed to persist collection %s: %w", c.id, err)
	}

	c.file = file
	c.index.reset(dim)
	c.records = nil
	return nil
}

func (c *collection) count() int {
	return len(c.records)
}

func (c *collection) stats() domain.CollectionStats {
	st := domain.CollectionStats{
		ID:        c.id,
		Exists:    c.file != nil,
		Dimension: c.index.dim,
		Count:     c.count(),
	}

	seen := make(map[string]struct{})
	for _, r := range c.records {
		if r.Source == "" {
			continue
		}
		if _, ok := seen[r.Source]; !ok {
			seen[r.Source] = struct{}{}
			st.Sources = append(st.Sources, r.Source)
		}
	}
	sort.Strings(st.Sources)
	return st
}

func checkDimension(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrDimensionMismatch, dim)
	}
	return nil
}

// Ensure loads the collection, creating it empty at *dim when it does not
// exist and dim is given.
func (s *Store) Ensure(id string, dim *int) (Handle, error) {
	var h Handle
	err := s.write(id, func(c *collection) error {
		if c.file == nil && dim != nil {
			if err := checkDimension(*dim); err != nil {
				return err
			}
			if err := s.create(c, *dim); err != nil {
				return err
			}
		}
		h = Handle{ID: id, Exists: c.file != nil, Dimension: c.index.dim, Count: c.count()}
		return nil
	})
	return h, err
}

// Reset replaces the collection with an empty one at dim and persists it.
func (s *Store) Reset(id string, dim int) error {
	if err := checkDimension(dim); err != nil {
		return err
	}

	return s.write(id, func(c *collection) error {
		if c.file == nil {
			return s.create(c, dim)
		}
		if err := c.file.reset(dim); err != nil {
			return fmt.Errorf("failed to reset collection %s: %w", id, err)
		}
		c.index.reset(dim)
		c.records = nil
		return nil
	})
}

// InitAppend creates the collection at dim only if it does not exist.
// An existing collection with a different dimension is an error.
func (s *Store) InitAppend(id string, dim int) error {
	if err := checkDimension(dim); err != nil {
		return err
	}

	return s.write(id, func(c *collection) error {
		if c.file == nil {
			return s.create(c, dim)
		}
		if c.index.dim != 0 && c.index.dim != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, got %d",
				domain.ErrDimensionMismatch, id, c.index.dim, dim)
		}
		if c.index.dim == 0 {
			if err := c.file.setDimension(dim); err != nil {
				return fmt.Errorf("failed to persist dimension: %w", err)
			}
			c.index.dim = dim
		}
		return nil
	})
}

// AddEmbeddings appends vectors and records as one unit and persists them
// before returning. On first write to an empty collection the dimension is
// taken from vectors[0]. Nothing is applied when any check fails.
func (s *Store) AddEmbeddings(id string, vectors [][]float32, records []domain.ParagraphRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d vectors, %d records", domain.ErrLengthMismatch, len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	if err := checkDimension(dim); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, batch has %d",
				domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	return s.write(id, func(c *collection) error {
		if c.count() > 0 && c.index.dim != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, got %d",
				domain.ErrDimensionMismatch, id, c.index.dim, dim)
		}

		if c.file == nil {
			if err := s.create(c, dim); err != nil {
				return err
			}
		}

		if err := c.file.appendBatch(c.count(), dim, vectors, records); err != nil {
			return fmt.Errorf("failed to persist embeddings for %s: %w", id, err)
		}

		if c.count() == 0 {
			c.index.reset(dim)
		}
		c.index.add(vectors)
		c.records = append(c.records, records...)
		return nil
	})
}

// Replace swaps the whole content of the collection for vectors and
// records in one locked step and one transaction. Readers see either the
// old content or the new one, never an empty collection in between.
func (s *Store) Replace(id string, vectors [][]float32, records []domain.ParagraphRecord) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d vectors, %d records", domain.ErrLengthMismatch, len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return fmt.Errorf("%w: replace with no vectors", domain.ErrEmptyInput)
	}

	dim := len(vectors[0])
	if err := checkDimension(dim); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, batch has %d",
				domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	return s.write(id, func(c *collection) error {
		if c.file == nil {
			if err := s.create(c, dim); err != nil {
				return err
			}
		}
		if err := c.file.replace(dim, vectors, records); err != nil {
			return fmt.Errorf("failed to replace collection %s: %w", id, err)
		}

		c.index.reset(dim)
		c.index.add(vectors)
		c.records = append([]domain.ParagraphRecord(nil), records...)
		return nil
	})
}

// HasData reports whether the collection exists and holds aligned,
// non-empty vectors and records.
func (s *Store) HasData(id string) bool {
	var ok bool
	s.read(id, func(c *collection) {
		ok = c.file != nil && c.count() > 0 && c.index.Len() == c.count()
	})
	return ok
}

// Search returns up to k records nearest to query by ascending Euclidean
// distance. With sources set, over-fetched candidates outside the set are
// skipped and fewer than k records may come back. A missing or empty
// collection yields no records and no error.
func (s *Store) Search(id string, query []float32, k int, sources []string) ([]domain.ScoredRecord, error) {
	if k <= 0 {
		return []domain.ScoredRecord{}, nil
	}

	var allowed map[string]struct{}
	if len(sources) > 0 {
		allowed = make(map[string]struct{}, len(sources))
		for _, src := range sources {
			allowed[src] = struct{}{}
		}
	}

	results := []domain.ScoredRecord{}
	var searchErr error
	err := s.read(id, func(c *collection) {
		if c.count() == 0 {
			return
		}
		if len(query) != c.index.dim {
			searchErr = fmt.Errorf("%w: query has dimension %d, collection %s has %d",
				domain.ErrDimensionMismatch, len(query), id, c.index.dim)
			return
		}

		fetch := k
		if allowed != nil {
			fetch = k * s.overFetch
		}

		for _, cand := range c.index.nearest(query, fetch) {
			rec := c.records[cand.pos]
			if allowed != nil {
				if _, ok := allowed[rec.Source]; !ok {
					continue
				}
			}
			results = append(results, domain.ScoredRecord{
				Record:   rec,
				Distance: euclidean(cand.distance),
			})
			if len(results) == k {
				break
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if searchErr != nil {
		return nil, searchErr
	}
	return results, nil
}

// Stats describes the collection. A missing collection reports Exists false.
func (s *Store) Stats(id string) (domain.CollectionStats, error) {
	st := domain.CollectionStats{ID: id}
	err := s.read(id, func(c *collection) {
		st = c.stats()
	})
	return st, err
}

// List returns the ids of all collections persisted under the store root.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || domain.ValidateCollectionID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), collectionFile)); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete closes the collection and removes its directory.
func (s *Store) Delete(id string) error {
	c, err := s.collection(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file != nil {
		if err := c.file.Close(); err != nil {
			s.logger.Warn("failed to close collection file",
				zap.String("collection", id), zap.Error(err))
		}
	}

	c.file = nil
	c.index = flatIndex{}
	c.records = nil
	c.loaded = true
	c.deleted = true

	s.mu.Lock()
	if s.collections[id] == c {
		delete(s.collections, id)
	}
	s.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", id, err)
	}
	return nil
}

// Close closes every open collection file.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	open := make([]*collection, 0, len(s.collections))
	for _, c := range s.collections {
		open = append(open, c)
	}
	s.collections = make(map[string]*collection)
	s.mu.Unlock()

	var errs []error
	for _, c := range open {
		c.mu.Lock()
		if c.file != nil {
			if err := c.file.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.id, err))
			}
			c.file = nil
		}
		c.deleted = true
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// bboltTimeout reports whether err is a lock wait timeout.
func bboltTimeout(err error) bool {
	return errors.Is(err, bbolt.ErrTimeout)
}
