package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLogAppendTruncatesExcerpt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	long := strings.Repeat("約", 150)
	at := time.Date(2025, 10, 13, 1, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO message_logs").
		WithArgs(at, "42", "Alice", "reminder_daily", StatusSuccess, "", strings.Repeat("約", 100)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewMessageLog(db).Append(context.Background(), LogEntry{
		CreatedAt: at, UserID: "42", TargetName: "Alice",
		MessageType: TypeReminderDaily, Status: StatusSuccess, Excerpt: long,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageLogRecentFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 10, 13, 1, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "created_at", "user_id", "target_name", "message_type", "status", "error_message", "excerpt"}).
		AddRow(int64(2), at, "42", "Alice", "reminder_weekly", "failed", "blocked", "hi")
	mock.ExpectQuery("SELECT (.+) FROM message_logs").
		WithArgs(sqlmock.AnyArg(), "failed", 100).
		WillReturnRows(rows)

	entries, err := NewMessageLog(db).Recent(context.Background(), LogFilter{
		Types: []MessageType{TypeReminderWeekly}, Status: StatusFailed,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TypeReminderWeekly, entries[0].MessageType)
	assert.Equal(t, "blocked", entries[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExcerptKeepsShortText(t *testing.T) {
	assert.Equal(t, "hello", Excerpt("hello"))
	assert.Len(t, []rune(Excerpt(strings.Repeat("a", 101))), 100)
}
