package persistence

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/backend/pkg/constants"
)

func TestOutboxEnqueueWithinTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewOutboxRepository(db)

	// Sub-second created_date precision is what keeps same-second events
	// relayed in commit order.
	query := fmt.Sprintf(
		"INSERT INTO `%s` (`id`, `event_type`, `payload`, `status`, `retry_count`, `created_date`) VALUES (?, ?, ?, ?, 0, NOW(6))",
		constants.TableOutbox)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(sqlmock.AnyArg(), "row.updated", []byte(`{"row_id":"row-1"}`), OutboxStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	id, err := repo.Enqueue(context.Background(), tx, "row.updated", map[string]string{"row_id": "row-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxEnqueueRollsBackWithTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewOutboxRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `sales_event_outbox`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.Enqueue(context.Background(), tx, "row.created", map[string]string{"row_id": "row-1"})
	require.NoError(t, err)

	// The event vanishes with the aborted business transaction; nothing
	// is ever published for a rolled-back mutation.
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewOutboxRepository(db)

	query := fmt.Sprintf(
		"SELECT `id`, `event_type`, `payload`, `retry_count` FROM `%s` WHERE `status` = ? ORDER BY `created_date` ASC LIMIT ?",
		constants.TableOutbox)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(OutboxStatusPending, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "payload", "retry_count"}).
			AddRow("evt-1", "row.created", `{"row_id":"row-1"}`, 0).
			AddRow("evt-2", "row.updated", `{"row_id":"row-2"}`, 1))

	events, err := repo.GetPendingEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Commit order is preserved.
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "row.created", events[0].EventType)
	assert.Equal(t, "evt-2", events[1].ID)
	assert.Equal(t, 1, events[1].RetryCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingEventsSkipsMalformedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewOutboxRepository(db)

	mock.ExpectQuery("SELECT `id`, `event_type`, `payload`, `retry_count` FROM `sales_event_outbox`").
		WithArgs(OutboxStatusPending, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "payload", "retry_count"}).
			AddRow("evt-bad", "row.created", `{}`, "not-a-count").
			AddRow("evt-ok", "row.updated", `{"row_id":"row-1"}`, 0))

	// The unscannable row is skipped, the rest of the batch still relays.
	events, err := repo.GetPendingEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-ok", events[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedAndFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewOutboxRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(
		"UPDATE `%s` SET `status` = ?, `processed_date` = NOW() WHERE `id` = ?", constants.TableOutbox))).
		WithArgs(OutboxStatusProcessed, "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkProcessed(context.Background(), "evt-1"))

	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(
		"UPDATE `%s` SET `status` = ?, `error_message` = ? WHERE `id` = ?", constants.TableOutbox))).
		WithArgs(OutboxStatusFailed, "handler exploded", "evt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(context.Background(), "evt-2", "handler exploded"))

	mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(
		"UPDATE `%s` SET `retry_count` = ?, `error_message` = ? WHERE `id` = ?", constants.TableOutbox))).
		WithArgs(2, "transient", "evt-3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementRetry(context.Background(), "evt-3", 2, "transient"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
