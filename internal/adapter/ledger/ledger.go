package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

var bucketCosts = []byte("costs")

// Entry is the persisted cost state of one collection.
type Entry struct {
	PendingTranscribeCost float64 `json:"pending_transcribe_cost"`
}

// Ledger is a bbolt backed map from collection id to pending costs.
// Each Accumulate and Pop is a single read-modify-write transaction, so
// concurrent calls for the same collection never lose or double count.
type Ledger struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens or creates the ledger at path.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCosts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create costs bucket: %w", err)
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func ledgerKey(collectionID string) []byte {
	if collectionID == "" {
		collectionID = domain.DefaultCollectionID
	}
	return []byte(collectionID)
}

// decodeEntry reads an entry; an unreadable value counts as zero.
func (l *Ledger) decodeEntry(key, data []byte) Entry {
	var e Entry
	if data == nil {
		return e
	}
	if err := json.Unmarshal(data, &e); err != nil || math.IsNaN(e.PendingTranscribeCost) || e.PendingTranscribeCost < 0 {
		l.logger.Warn("unreadable ledger entry, treating as zero",
			zap.ByteString("collection", key), zap.Error(err))
		return Entry{}
	}
	return e
}

// Accumulate adds amount to the pending transcription cost of collectionID.
// An empty id bills the default bucket.
func (l *Ledger) Accumulate(collectionID string, amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAmount, amount)
	}

	key := ledgerKey(collectionID)
	var total float64
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCosts)
		e := l.decodeEntry(key, b.Get(key))
		e.PendingTranscribeCost = domain.RoundUSD(e.PendingTranscribeCost + amount)
		total = e.PendingTranscribeCost

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to accumulate cost for %s: %w", key, err)
	}

	l.logger.Debug("transcribe cost accumulated",
		zap.ByteString("collection", key),
		zap.Float64("amount", amount),
		zap.Float64("pending", total))
	return nil
}

// Pop returns the pending transcription cost of collectionID and resets it
// to zero in the same transaction.
func (l *Ledger) Pop(collectionID string) (float64, error) {
	key := ledgerKey(collectionID)
	var popped float64
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCosts)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		e := l.decodeEntry(key, data)
		popped = e.PendingTranscribeCost

		reset, err := json.Marshal(Entry{})
		if err != nil {
			return err
		}
		return b.Put(key, reset)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to pop cost for %s: %w", key, err)
	}
	return popped, nil
}

// Peek returns the pending transcription cost without clearing it.
func (l *Ledger) Peek(collectionID string) (float64, error) {
	key := ledgerKey(collectionID)
	var pending float64
	err := l.db.View(func(tx *bbolt.Tx) error {
		pending = l.decodeEntry(key, tx.Bucket(bucketCosts).Get(key)).PendingTranscribeCost
		return nil
	})
	return pending, err
}

// All returns every entry in the ledger.
func (l *Ledger) All() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCosts).ForEach(func(k, v []byte) error {
			entries[string(k)] = l.decodeEntry(k, v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

// Forget drops the entry of collectionID, e.g. when the collection is deleted.
func (l *Ledger) Forget(collectionID string) error {
	key := ledgerKey(collectionID)
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCosts).Delete(key)
	})
}
