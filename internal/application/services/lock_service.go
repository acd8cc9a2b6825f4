package services

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/constants"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
	"github.com/salesdesk/backend/pkg/utils"
)

// DefaultLockTTL is used when LOCK_TTL_SECONDS is unset.
const DefaultLockTTL = 5 * time.Minute

// acquireAttempts bounds the compare-and-set retry loop. A failed attempt
// re-reads the lock state; retrying covers the race where the blocking
// lock expires or is released between the write and the read.
const acquireAttempts = 3

// lockStore is the storage contract the lock protocol needs: a single
// atomic conditional write for acquisition, a holder-guarded clear for
// release, and an expiry-guarded clear for stale cleanup.
type lockStore interface {
	TryAcquireLock(ctx context.Context, id, holderID string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, id, holderID string) (bool, error)
	ClearExpiredLock(ctx context.Context, id, holderID string, expiredBefore time.Time) (bool, error)
	GetLockState(ctx context.Context, id string) (models.LockState, bool, error)
}

// activityAppender appends immutable audit entries.
type activityAppender interface {
	Append(ctx context.Context, tx *sql.Tx, entry models.ActivityEntry) error
}

// eventSink accepts committed-state events for fan-out. With a nil tx the
// event is persisted immediately, which is correct for single-statement
// mutations that are already committed.
type eventSink interface {
	Enqueue(ctx context.Context, tx *sql.Tx, eventType events.EventType, payload interface{}) error
}

// userDirectory resolves actor ids to display names for conflict messages.
type userDirectory interface {
	FindName(ctx context.Context, id string) (string, error)
}

// RowLockPayload is the fan-out payload for lock/unlock events.
type RowLockPayload struct {
	RowID      string `json:"row_id"`
	HolderID   string `json:"holder_id,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
}

// LockService serializes concurrent edit attempts on individual rows with
// a TTL-expiring per-row lock.
type LockService struct {
	store    lockStore
	activity activityAppender
	sink     eventSink
	users    userDirectory
	ttl      time.Duration
	now      func() time.Time
}

// NewLockService creates a LockService with the TTL taken from
// LOCK_TTL_SECONDS (falling back to DefaultLockTTL).
func NewLockService(store lockStore, activity activityAppender, sink eventSink, users userDirectory) *LockService {
	ttl := DefaultLockTTL
	if raw := os.Getenv("LOCK_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	return &LockService{
		store:    store,
		activity: activity,
		sink:     sink,
		users:    users,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the configured lock TTL.
func (ls *LockService) TTL() time.Duration {
	return ls.ttl
}

// IsLocked is the pure lock predicate: a holder is recorded and the lock
// has not yet expired.
func (ls *LockService) IsLocked(state models.LockState) bool {
	return state.Held() && ls.now().Sub(state.AcquiredAt) < ls.ttl
}

// AcquireLock attempts to take the edit lock on a row for actor. The
// check-then-set is one conditional UPDATE, so two racing acquirers can
// never both succeed. Re-acquiring an already-held lock refreshes its
// timestamp and succeeds. A conflicting non-expired lock is reported with
// the holder's identity; the caller decides whether to retry.
func (ls *LockService) AcquireLock(ctx context.Context, rowID string, actor *models.UserSession) error {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		now := ls.now()

		acquired, err := ls.store.TryAcquireLock(ctx, rowID, actor.ID, now, ls.ttl)
		if err != nil {
			return apperrors.NewInternalError("lock acquisition failed", err)
		}

		if acquired {
			ls.recordLockActivity(ctx, rowID, actor, constants.ActionLocked)
			ls.emit(ctx, events.RowLocked, RowLockPayload{RowID: rowID, HolderID: actor.ID, HolderName: actor.Name})
			return nil
		}

		state, exists, err := ls.store.GetLockState(ctx, rowID)
		if err != nil {
			return apperrors.NewInternalError("lock state read failed", err)
		}
		if !exists {
			return apperrors.NewNotFoundError("row", rowID)
		}

		if ls.IsLocked(state) && state.Holder != actor.ID {
			holderName := ls.resolveName(ctx, state.Holder)
			return apperrors.NewLockConflictError(rowID, state.Holder, holderName)
		}

		// The write was rejected but no live conflicting lock is visible:
		// the blocker was released or expired between the two statements.
		// Loop and try the conditional write again.
	}

	return apperrors.NewConflictMessage("row lock", "could not acquire lock, please retry")
}

// ReleaseLock clears the lock on a row. Only the current non-expired
// holder may release normally; an expired lock is cleared no matter who
// asks (stale cleanup). Releasing an already-unlocked row succeeds.
func (ls *LockService) ReleaseLock(ctx context.Context, rowID string, actor *models.UserSession) error {
	state, exists, err := ls.store.GetLockState(ctx, rowID)
	if err != nil {
		return apperrors.NewInternalError("lock state read failed", err)
	}
	if !exists {
		return apperrors.NewNotFoundError("row", rowID)
	}

	if !state.Held() {
		// Already unlocked, treated as success
		return nil
	}

	if !ls.IsLocked(state) {
		// Stale lock cleanup: anyone may clear an expired lock, but the
		// clear is guarded on the observed holder and expiry cutoff so a
		// fresh lock acquired after the state read above survives.
		cleared, err := ls.store.ClearExpiredLock(ctx, rowID, state.Holder, ls.now().Add(-ls.ttl))
		if err != nil {
			return apperrors.NewInternalError("stale lock cleanup failed", err)
		}
		if !cleared {
			// The expired lock is already gone, or the row was re-locked
			// since the read. Nothing stale left to release.
			return nil
		}
		log.Printf("🔓 Cleared expired lock on row %s (held by %s, released by %s)", rowID, state.Holder, actor.ID)
		ls.recordLockActivity(ctx, rowID, actor, constants.ActionUnlocked)
		ls.emit(ctx, events.RowUnlocked, RowLockPayload{RowID: rowID})
		return nil
	}

	if state.Holder != actor.ID {
		return apperrors.NewAuthorizationError("release lock on", "row "+rowID)
	}

	released, err := ls.store.ReleaseLock(ctx, rowID, actor.ID)
	if err != nil {
		return apperrors.NewInternalError("lock release failed", err)
	}
	if !released {
		// The lock changed hands between read and write; the caller no
		// longer holds it, so there is nothing to release.
		return nil
	}

	ls.recordLockActivity(ctx, rowID, actor, constants.ActionUnlocked)
	ls.emit(ctx, events.RowUnlocked, RowLockPayload{RowID: rowID})
	return nil
}

// GetLockState exposes the current lock condition of a row.
func (ls *LockService) GetLockState(ctx context.Context, rowID string) (models.LockState, error) {
	state, exists, err := ls.store.GetLockState(ctx, rowID)
	if err != nil {
		return models.LockState{}, apperrors.NewInternalError("lock state read failed", err)
	}
	if !exists {
		return models.LockState{}, apperrors.NewNotFoundError("row", rowID)
	}
	if state.Held() {
		state.HolderName = ls.resolveName(ctx, state.Holder)
	}
	return state, nil
}

func (ls *LockService) recordLockActivity(ctx context.Context, rowID string, actor *models.UserSession, action string) {
	if ls.activity == nil {
		return
	}
	entry := models.ActivityEntry{
		ID:          utils.GenerateID(),
		RowID:       rowID,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      action,
		CreatedDate: ls.now(),
	}
	if err := ls.activity.Append(ctx, nil, entry); err != nil {
		log.Printf("⚠️ Failed to record %s activity for row %s: %v", action, rowID, err)
	}
}

func (ls *LockService) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if ls.sink == nil {
		return
	}
	if err := ls.sink.Enqueue(ctx, nil, eventType, payload); err != nil {
		log.Printf("⚠️ Failed to enqueue %s event: %v", eventType, err)
	}
}

func (ls *LockService) resolveName(ctx context.Context, userID string) string {
	if ls.users == nil {
		return ""
	}
	name, err := ls.users.FindName(ctx, userID)
	if err != nil {
		return ""
	}
	return name
}
