package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/state"
)

// setupStateRepo подключается к TEST_DB_URL. Без неё тесты пропускаются.
func setupStateRepo(t *testing.T) *StateRepo {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx := context.Background()
	backend, err := OpenStateRepo(ctx, state.Config{DBURL: dsn, Scope: uuid.NewString()})
	require.NoError(t, err)

	r := backend.(*StateRepo)
	t.Cleanup(func() {
		_ = r.Purge(context.Background())
		_ = r.Close()
	})
	return r
}

// --- StateRepo Tests ---

func TestNewStateRepo_RequiresScope(t *testing.T) {
	_, err := NewStateRepo(nil, "")
	assert.ErrorIs(t, err, ErrNoScope)

	_, err = OpenStateRepo(context.Background(), state.Config{})
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestStateRepo_CommitAndRead(t *testing.T) {
	r := setupStateRepo(t)
	ctx := context.Background()
	target := domain.StepAndKey{StageID: "process", Key: "k1"}

	err := r.Commit(ctx, target, state.GlobalNamespace, state.Mutation{
		Writes: map[string][]byte{state.CellRestriction: []byte(`{"from":0,"to":10}`)},
	})
	require.NoError(t, err)

	data, ok, err := r.Read(ctx, target, state.GlobalNamespace, state.CellRestriction)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"from":0,"to":10}`, string(data))

	err = r.Commit(ctx, target, state.GlobalNamespace, state.Mutation{Clears: []string{state.CellRestriction}})
	require.NoError(t, err)

	_, ok, err = r.Read(ctx, target, state.GlobalNamespace, state.CellRestriction)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateRepo_HoldKeepsMinimum(t *testing.T) {
	r := setupStateRepo(t)
	ctx := context.Background()
	target := domain.StepAndKey{StageID: "process", Key: "k1"}

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	require.NoError(t, r.Commit(ctx, target, "ns", state.Mutation{AddHold: &late}))
	require.NoError(t, r.Commit(ctx, target, "ns", state.Mutation{AddHold: &early}))
	require.NoError(t, r.Commit(ctx, target, "ns", state.Mutation{AddHold: &late}))

	hold, ok, err := r.Hold(ctx, target, "ns")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, hold.Equal(early))

	require.NoError(t, r.Commit(ctx, target, "ns", state.Mutation{ClearHold: true}))
	_, ok, err = r.Hold(ctx, target, "ns")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateRepo_TimersFireOnce(t *testing.T) {
	r := setupStateRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"b", "a"} {
		timer := domain.TimerData{Namespace: "ns", TimerID: "resume", FireAt: base.Add(time.Duration(i) * time.Second), Domain: domain.ProcessingTime}
		require.NoError(t, r.Commit(ctx, domain.StepAndKey{StageID: "process", Key: key}, "ns", state.Mutation{SetTimer: &timer}))
	}

	n, err := r.PendingTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fired, err := r.FireDueTimers(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, fired, 2)
	assert.Equal(t, "b", fired[0].Target.Key)
	assert.Equal(t, "a", fired[1].Target.Key)
	assert.Equal(t, domain.ProcessingTime, fired[0].Timer.Domain)

	fired, err = r.FireDueTimers(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestStateRepo_Closed(t *testing.T) {
	r := &StateRepo{scope: "x"}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, _, err := r.Read(context.Background(), domain.StepAndKey{}, "ns", "cell")
	assert.ErrorIs(t, err, ErrClosed)
}
