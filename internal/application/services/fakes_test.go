package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/salesdesk/backend/internal/domain/events"
	"github.com/salesdesk/backend/pkg/models"
)

// In-memory fakes for the storage contracts, shared across service tests.

type fakeColumnStore struct {
	columns []models.ColumnDefinition
}

func (f *fakeColumnStore) Insert(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error {
	f.columns = append(f.columns, col)
	return nil
}

func (f *fakeColumnStore) Update(ctx context.Context, tx *sql.Tx, col models.ColumnDefinition) error {
	for i := range f.columns {
		if f.columns[i].ID == col.ID {
			f.columns[i] = col
		}
	}
	return nil
}

func (f *fakeColumnStore) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	out := f.columns[:0]
	for _, c := range f.columns {
		if c.ID != id {
			out = append(out, c)
		}
	}
	f.columns = out
	return nil
}

func (f *fakeColumnStore) List(ctx context.Context) ([]models.ColumnDefinition, error) {
	return append([]models.ColumnDefinition{}, f.columns...), nil
}

func (f *fakeColumnStore) FindByID(ctx context.Context, id string) (*models.ColumnDefinition, error) {
	for _, c := range f.columns {
		if c.ID == id {
			col := c
			return &col, nil
		}
	}
	return nil, nil
}

func (f *fakeColumnStore) MaxDisplayOrder(ctx context.Context) (int, error) {
	max := -1
	for _, c := range f.columns {
		if c.DisplayOrder > max {
			max = c.DisplayOrder
		}
	}
	return max, nil
}

type fakeOptionStore struct {
	options []models.DropdownOption
}

func (f *fakeOptionStore) Insert(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error {
	f.options = append(f.options, opt)
	return nil
}

func (f *fakeOptionStore) Update(ctx context.Context, tx *sql.Tx, opt models.DropdownOption) error {
	for i := range f.options {
		if f.options[i].ID == opt.ID {
			f.options[i] = opt
		}
	}
	return nil
}

func (f *fakeOptionStore) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	out := f.options[:0]
	for _, o := range f.options {
		if o.ID != id {
			out = append(out, o)
		}
	}
	f.options = out
	return nil
}

func (f *fakeOptionStore) DeleteByScope(ctx context.Context, tx *sql.Tx, scope string) error {
	out := f.options[:0]
	for _, o := range f.options {
		if o.Scope != scope {
			out = append(out, o)
		}
	}
	f.options = out
	return nil
}

func (f *fakeOptionStore) ListByScope(ctx context.Context, scope string) ([]models.DropdownOption, error) {
	var out []models.DropdownOption
	for _, o := range f.options {
		if o.Scope == scope && o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOptionStore) FindByID(ctx context.Context, id string) (*models.DropdownOption, error) {
	for _, o := range f.options {
		if o.ID == id {
			opt := o
			return &opt, nil
		}
	}
	return nil, nil
}

func (f *fakeOptionStore) MaxDisplayOrder(ctx context.Context, scope string) (int, error) {
	max := -1
	for _, o := range f.options {
		if o.Scope == scope && o.DisplayOrder > max {
			max = o.DisplayOrder
		}
	}
	return max, nil
}

// fakeUsageScanner reports scripted usage counts per scope and value.
type fakeUsageScanner struct {
	usage map[string]map[string]int
}

func (f *fakeUsageScanner) CountFieldValueUse(ctx context.Context, scope string, candidates []string) (int, error) {
	total := 0
	for _, c := range candidates {
		total += f.usage[scope][c]
	}
	return total, nil
}

// fakeTxRunner runs the function directly with a nil transaction.
type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTransaction(fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type enqueuedEvent struct {
	eventType events.EventType
	payload   interface{}
	inTx      bool
}

type fakeSink struct {
	mu     sync.Mutex
	events []enqueuedEvent
}

func (f *fakeSink) Enqueue(ctx context.Context, tx *sql.Tx, eventType events.EventType, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, enqueuedEvent{eventType: eventType, payload: payload, inTx: tx != nil})
	return nil
}

func (f *fakeSink) ofType(eventType events.EventType) []enqueuedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueuedEvent
	for _, e := range f.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
}

func (f *fakeActivity) Append(ctx context.Context, tx *sql.Tx, entry models.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeActivity) byAction(action string) []models.ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ActivityEntry
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeRowStore struct {
	mu   sync.Mutex
	rows map[string]models.Row
}

func newFakeRowStore() *fakeRowStore {
	return &fakeRowStore{rows: map[string]models.Row{}}
}

func (f *fakeRowStore) Insert(ctx context.Context, tx *sql.Tx, row models.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.GetString("id")] = row.Clone()
	return nil
}

func (f *fakeRowStore) FindByID(ctx context.Context, tx *sql.Tx, id string) (models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return row.Clone(), nil
}

func (f *fakeRowStore) List(ctx context.Context, limit int) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Row
	for _, row := range f.rows {
		if !row.GetBool("is_deleted") {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (f *fakeRowStore) UpdateFields(ctx context.Context, tx *sql.Tx, id string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	for k, v := range updates {
		row[k] = v
	}
	return nil
}

func (f *fakeRowStore) SetDeleted(ctx context.Context, tx *sql.Tx, id string, deleted bool, actorID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	row["is_deleted"] = deleted
	row["last_modified_by"] = actorID
	row["last_modified_date"] = now
	return nil
}

func (f *fakeRowStore) HardDelete(ctx context.Context, tx *sql.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// fakeLockStore mirrors the conditional-write semantics of the SQL lock
// columns under a mutex, so racing goroutines exercise a real
// compare-and-set.
type fakeLockStore struct {
	mu       sync.Mutex
	existing map[string]bool
	holders  map[string]string
	acquired map[string]time.Time
}

func newFakeLockStore(rowIDs ...string) *fakeLockStore {
	f := &fakeLockStore{
		existing: map[string]bool{},
		holders:  map[string]string{},
		acquired: map[string]time.Time{},
	}
	for _, id := range rowIDs {
		f.existing[id] = true
	}
	return f
}

func (f *fakeLockStore) TryAcquireLock(ctx context.Context, id, holderID string, now time.Time, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.existing[id] {
		return false, nil
	}

	holder := f.holders[id]
	acquiredAt, hasStamp := f.acquired[id]
	free := holder == "" || holder == holderID || !hasStamp || acquiredAt.Before(now.Add(-ttl))
	if !free {
		return false, nil
	}

	f.holders[id] = holderID
	f.acquired[id] = now
	return true, nil
}

func (f *fakeLockStore) ReleaseLock(ctx context.Context, id, holderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.holders[id] != holderID {
		return false, nil
	}
	delete(f.holders, id)
	delete(f.acquired, id)
	return true, nil
}

func (f *fakeLockStore) ClearExpiredLock(ctx context.Context, id, holderID string, expiredBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acquiredAt, hasStamp := f.acquired[id]
	if f.holders[id] != holderID || !hasStamp || !acquiredAt.Before(expiredBefore) {
		return false, nil
	}
	delete(f.holders, id)
	delete(f.acquired, id)
	return true, nil
}

func (f *fakeLockStore) GetLockState(ctx context.Context, id string) (models.LockState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.existing[id] {
		return models.LockState{}, false, nil
	}
	return models.LockState{
		Holder:     f.holders[id],
		AcquiredAt: f.acquired[id],
	}, true, nil
}

type fakeUserDirectory struct {
	names map[string]string
}

func (f *fakeUserDirectory) FindName(ctx context.Context, id string) (string, error) {
	return f.names[id], nil
}
