package splittable

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shaiso/Flume/internal/domain"
)

// --- Splitter Tests ---

func TestSplitter_DefaultSplit(t *testing.T) {
	s := NewSplitter(&countFn{})

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out, err := s.Split(domain.TimestampedValue(int64(10), ts))
	require.NoError(t, err)
	require.Len(t, out, 1)

	kv, ok := out[0].Value.(domain.KV)
	require.True(t, ok)
	assert.Len(t, kv.Key, 36, "expected UUID key")
	assert.True(t, out[0].Timestamp.Equal(ts))

	pair, ok := kv.Value.(ElementAndRestriction)
	require.True(t, ok)
	assert.Equal(t, int64(10), pair.Element)
	assert.Equal(t, OffsetRange{From: 0, To: 10}, pair.Restriction)
}

func TestSplitter_SplitRestriction(t *testing.T) {
	s := NewSplitter(&splittingCountFn{countFn{parts: 3}})

	out, err := s.Split(domain.ValueInGlobalWindow(int64(9)))
	require.NoError(t, err)
	require.Len(t, out, 3)

	keys := make(map[string]bool)
	var covered int64
	for _, wv := range out {
		kv := wv.Value.(domain.KV)
		keys[kv.Key] = true
		covered += kv.Value.(ElementAndRestriction).Restriction.(OffsetRange).Size()
	}

	assert.Len(t, keys, 3, "every part gets its own key")
	assert.Equal(t, int64(9), covered)
}

func TestSplitter_EmptySplit(t *testing.T) {
	s := NewSplitter(&splittingCountFn{countFn{parts: 0}})

	_, err := s.Split(domain.ValueInGlobalWindow(int64(9)))
	assert.ErrorIs(t, err, ErrEmptySplit)

	var fnErr *FnError
	assert.False(t, errors.As(err, &fnErr), "empty split is a contract violation, not a user error")
}

func TestSplitter_UserError(t *testing.T) {
	s := NewSplitter(&countFn{})

	_, err := s.Split(domain.ValueInGlobalWindow("not a number"))

	var fnErr *FnError
	require.ErrorAs(t, err, &fnErr)
	assert.Equal(t, "initial_restriction", fnErr.Op)
}

// --- GroupIntoKeyedWorkItems Tests ---

func TestGroupIntoKeyedWorkItems(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w1 := domain.Window{Start: base, End: base.Add(time.Hour)}
	w2 := domain.Window{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}

	pairA := ElementAndRestriction{Element: "a", Restriction: OffsetRange{0, 1}}
	pairB := ElementAndRestriction{Element: "b", Restriction: OffsetRange{0, 2}}

	in := []domain.WindowedValue{
		{Value: domain.KV{Key: "ka", Value: pairA}, Timestamp: base, Windows: []domain.Window{w1}},
		{Value: domain.KV{Key: "kb", Value: pairB}, Timestamp: base, Windows: []domain.Window{w1}},
		{Value: domain.KV{Key: "ka", Value: pairA}, Timestamp: base, Windows: []domain.Window{w2}},
	}

	items, err := GroupIntoKeyedWorkItems(in)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "ka", items[0].Key)
	require.Len(t, items[0].Elements, 2)
	assert.Equal(t, pairA, items[0].Elements[0].Value)
	assert.True(t, items[0].Elements[1].Windows[0].Equal(w2))
	assert.Empty(t, items[0].Timers)

	assert.Equal(t, "kb", items[1].Key)
	assert.Len(t, items[1].Elements, 1)
}

func TestGroupIntoKeyedWorkItems_RejectsNonKV(t *testing.T) {
	_, err := GroupIntoKeyedWorkItems([]domain.WindowedValue{domain.ValueInGlobalWindow(1)})
	assert.Error(t, err)
}

// --- Property Tests ---

// Ключи уникальны при конкурентном назначении.
func TestSplitter_UniqueKeysUnderConcurrency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		workers := rapid.IntRange(1, 16).Draw(rt, "workers")
		perWorker := rapid.IntRange(1, 200).Draw(rt, "perWorker")

		s := NewSplitter(&countFn{})

		var mu sync.Mutex
		seen := make(map[string]bool, workers*perWorker)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					key, _ := s.AssignKey(ElementAndRestriction{Element: i})
					mu.Lock()
					seen[key] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if len(seen) != workers*perWorker {
			rt.Fatalf("expected %d unique keys, got %d", workers*perWorker, len(seen))
		}
	})
}
