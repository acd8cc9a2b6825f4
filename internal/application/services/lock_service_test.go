package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
)

// testClock is a settable clock for lock expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLockServiceForTest(rowIDs ...string) (*LockService, *fakeLockStore, *fakeActivity, *fakeSink, *testClock) {
	store := newFakeLockStore(rowIDs...)
	activity := &fakeActivity{}
	sink := &fakeSink{}
	users := &fakeUserDirectory{names: map[string]string{
		"user-a": "Alice",
		"user-b": "Bob",
	}}

	clock := &testClock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewLockService(store, activity, sink, users)
	svc.ttl = 5 * time.Minute
	svc.now = clock.Now
	return svc, store, activity, sink, clock
}

var (
	alice = &models.UserSession{ID: "user-a", Name: "Alice"}
	bob   = &models.UserSession{ID: "user-b", Name: "Bob"}
)

func TestAcquireLockMutualExclusion(t *testing.T) {
	svc, _, activity, sink, _ := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))

	err := svc.AcquireLock(ctx, "row-1", bob)
	require.Error(t, err)
	assert.True(t, apperrors.IsLockConflict(err))

	var lockErr *apperrors.LockConflictError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "user-a", lockErr.HolderID)
	assert.Equal(t, "Alice", lockErr.HolderName)

	// Only the successful acquisition is audited and broadcast.
	assert.Len(t, activity.byAction(constants.ActionLocked), 1)
	assert.Len(t, sink.ofType(events.RowLocked), 1)
}

func TestAcquireLockIdempotentForHolder(t *testing.T) {
	svc, store, _, _, clock := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))
	first := store.acquired["row-1"]

	clock.Advance(time.Minute)
	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))

	// Re-acquiring refreshes the timestamp.
	assert.True(t, store.acquired["row-1"].After(first))
}

func TestAcquireLockAfterExpiry(t *testing.T) {
	svc, store, _, _, clock := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))

	clock.Advance(6 * time.Minute)

	require.NoError(t, svc.AcquireLock(ctx, "row-1", bob))
	assert.Equal(t, "user-b", store.holders["row-1"])
}

func TestAcquireLockUnknownRow(t *testing.T) {
	svc, _, _, _, _ := newLockServiceForTest("row-1")

	err := svc.AcquireLock(context.Background(), "no-such-row", alice)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestConcurrentAcquireOnlyOneWins(t *testing.T) {
	svc, _, _, _, _ := newLockServiceForTest("row-1")
	ctx := context.Background()

	const workers = 16
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actor := &models.UserSession{ID: "racer-" + string(rune('a'+n)), Name: "Racer"}
			if err := svc.AcquireLock(ctx, "row-1", actor); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestReleaseLockByHolder(t *testing.T) {
	svc, store, activity, sink, _ := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))
	require.NoError(t, svc.ReleaseLock(ctx, "row-1", alice))

	assert.Empty(t, store.holders["row-1"])
	assert.Len(t, activity.byAction(constants.ActionUnlocked), 1)
	assert.Len(t, sink.ofType(events.RowUnlocked), 1)
}

func TestReleaseLockAlreadyUnlocked(t *testing.T) {
	svc, _, activity, sink, _ := newLockServiceForTest("row-1")

	// Releasing an unlocked row succeeds without audit noise.
	require.NoError(t, svc.ReleaseLock(context.Background(), "row-1", alice))
	assert.Empty(t, activity.byAction(constants.ActionUnlocked))
	assert.Empty(t, sink.ofType(events.RowUnlocked))
}

func TestReleaseLockRejectsOtherLiveHolder(t *testing.T) {
	svc, store, _, _, _ := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))

	err := svc.ReleaseLock(ctx, "row-1", bob)
	assert.True(t, apperrors.IsAuthorization(err))
	assert.Equal(t, "user-a", store.holders["row-1"])
}

func TestReleaseLockClearsExpiredForAnyone(t *testing.T) {
	svc, store, activity, sink, clock := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))
	clock.Advance(6 * time.Minute)

	// Bob never held the lock, but the expired lock is cleared anyway and
	// the unlock is broadcast like a normal release.
	require.NoError(t, svc.ReleaseLock(ctx, "row-1", bob))
	assert.Empty(t, store.holders["row-1"])
	assert.Len(t, activity.byAction(constants.ActionUnlocked), 1)
	assert.Len(t, sink.ofType(events.RowUnlocked), 1)
}

// raceLockStore runs a callback just before the expired-lock clear,
// simulating another actor sneaking in between the state read and the
// clear statement.
type raceLockStore struct {
	*fakeLockStore
	beforeClear func()
}

func (s *raceLockStore) ClearExpiredLock(ctx context.Context, id, holderID string, expiredBefore time.Time) (bool, error) {
	if s.beforeClear != nil {
		s.beforeClear()
	}
	return s.fakeLockStore.ClearExpiredLock(ctx, id, holderID, expiredBefore)
}

func TestReleaseLockKeepsFreshLockAcquiredDuringCleanup(t *testing.T) {
	svc, store, activity, sink, clock := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))
	clock.Advance(6 * time.Minute)

	carol := &models.UserSession{ID: "user-c", Name: "Carol"}
	svc.store = &raceLockStore{fakeLockStore: store, beforeClear: func() {
		acquired, err := store.TryAcquireLock(ctx, "row-1", carol.ID, clock.Now(), svc.ttl)
		require.NoError(t, err)
		require.True(t, acquired)
	}}

	// Bob's cleanup observed Alice's expired lock, but Carol re-locked the
	// row before the clear ran. The guarded clear misses and Carol's live
	// lock survives.
	require.NoError(t, svc.ReleaseLock(ctx, "row-1", bob))
	assert.Equal(t, "user-c", store.holders["row-1"])

	dave := &models.UserSession{ID: "user-d", Name: "Dave"}
	err := svc.AcquireLock(ctx, "row-1", dave)
	assert.True(t, apperrors.IsLockConflict(err))
	assert.Equal(t, "user-c", store.holders["row-1"])

	// A cleanup that cleared nothing is not audited or broadcast.
	assert.Empty(t, activity.byAction(constants.ActionUnlocked))
	assert.Empty(t, sink.ofType(events.RowUnlocked))
}

func TestGetLockStateResolvesHolderName(t *testing.T) {
	svc, _, _, _, _ := newLockServiceForTest("row-1")
	ctx := context.Background()

	require.NoError(t, svc.AcquireLock(ctx, "row-1", alice))

	state, err := svc.GetLockState(ctx, "row-1")
	require.NoError(t, err)
	assert.Equal(t, "user-a", state.Holder)
	assert.Equal(t, "Alice", state.HolderName)
	assert.True(t, svc.IsLocked(state))
}

func TestIsLockedExpiry(t *testing.T) {
	svc, _, _, _, clock := newLockServiceForTest("row-1")

	state := models.LockState{Holder: "user-a", AcquiredAt: clock.Now()}
	assert.True(t, svc.IsLocked(state))

	clock.Advance(5*time.Minute + time.Second)
	assert.False(t, svc.IsLocked(state))

	assert.False(t, svc.IsLocked(models.LockState{}))
}
