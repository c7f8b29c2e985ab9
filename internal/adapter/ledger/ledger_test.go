package ledger

import (
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"docqa/internal/domain"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "costs.db")
	l, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestPopOnce(t *testing.T) {
	l, _ := openTestLedger(t)

	require.NoError(t, l.Accumulate("c1", 0.012))
	require.NoError(t, l.Accumulate("c1", 0.006))

	first, err := l.Pop("c1")
	require.NoError(t, err)
	require.InDelta(t, 0.018, first, 1e-9)

	second, err := l.Pop("c1")
	require.NoError(t, err)
	require.Equal(t, 0.0, second)
}

func TestPop_UnknownCollection(t *testing.T) {
	l, _ := openTestLedger(t)

	v, err := l.Pop("never-seen")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestDefaultBucket(t *testing.T) {
	l, _ := openTestLedger(t)

	require.NoError(t, l.Accumulate("", 0.5))

	v, err := l.Peek(domain.DefaultCollectionID)
	require.NoError(t, err)
	require.Equal(t, 0.5, v)

	v, err = l.Pop("")
	require.NoError(t, err)
	require.Equal(t, 0.5, v)
}

func TestCollectionsAreIndependent(t *testing.T) {
	l, _ := openTestLedger(t)

	require.NoError(t, l.Accumulate("a", 1))
	require.NoError(t, l.Accumulate("b", 2))

	v, err := l.Pop("a")
	require.NoError(t, err)
	require.Equal(t, 1.0, v)

	v, err = l.Peek("b")
	require.NoError(t, err)
	require.Equal(t, 2.0, v)
}

func TestAccumulate_RejectsInvalidAmounts(t *testing.T) {
	l, _ := openTestLedger(t)

	for _, amount := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		require.ErrorIs(t, l.Accumulate("c1", amount), domain.ErrInvalidAmount)
	}
	v, err := l.Peek("c1")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestPersistsAcrossReopen(t *testing.T) {
	l, path := openTestLedger(t)
	require.NoError(t, l.Accumulate("c1", 0.25))
	require.NoError(t, l.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.All()
	require.NoError(t, err)
	require.Equal(t, map[string]Entry{"c1": {PendingTranscribeCost: 0.25}}, all)
}

func TestUnreadableEntryCountsAsZero(t *testing.T) {
	l, _ := openTestLedger(t)
	require.NoError(t, l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCosts).Put([]byte("c1"), []byte("{not json"))
	}))

	require.NoError(t, l.Accumulate("c1", 0.1))
	v, err := l.Pop("c1")
	require.NoError(t, err)
	require.Equal(t, 0.1, v)
}

func TestConcurrentAccumulateAndPop_ConservesTotal(t *testing.T) {
	l, _ := openTestLedger(t)

	const workers, perWorker = 8, 25
	const amount = 0.001

	var wg sync.WaitGroup
	var mu sync.Mutex
	var popped float64

	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				require.NoError(t, l.Accumulate("shared", amount))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker/5; i++ {
				v, err := l.Pop("shared")
				require.NoError(t, err)
				mu.Lock()
				popped += v
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rest, err := l.Pop("shared")
	require.NoError(t, err)
	require.InDelta(t, workers*perWorker*amount, popped+rest, 1e-6)
}

func TestForget(t *testing.T) {
	l, _ := openTestLedger(t)
	require.NoError(t, l.Accumulate("tmp", 0.3))
	require.NoError(t, l.Forget("tmp"))

	all, err := l.All()
	require.NoError(t, err)
	require.NotContains(t, all, "tmp")
}
