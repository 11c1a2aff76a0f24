package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Log status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// LogEntry is one immutable record of a send attempt.
type LogEntry struct {
	ID           int64       `json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UserID       string      `json:"user_id"`
	TargetName   string      `json:"target_name"`
	MessageType  MessageType `json:"message_type"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Excerpt      string      `json:"excerpt"`
}

// LogFilter narrows Recent. Zero values match everything.
type LogFilter struct {
	Types  []MessageType
	Status string
	Limit  int
}

// MessageLog is the append-only audit trail of outbound messages. It exposes
// no update or delete.
type MessageLog struct {
	db *sql.DB
}

func NewMessageLog(db *sql.DB) *MessageLog {
	return &MessageLog{db: db}
}

// Append records one attempt.
func (l *MessageLog) Append(ctx context.Context, e LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO message_logs (created_at, user_id, target_name, message_type, status, error_message, excerpt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.CreatedAt, e.UserID, e.TargetName, string(e.MessageType), e.Status, e.ErrorMessage, Excerpt(e.Excerpt))
	if err != nil {
		return fmt.Errorf("messaging: append log: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (l *MessageLog) Recent(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	types := make([]string, len(f.Types))
	for i, t := range f.Types {
		types[i] = string(t)
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, user_id, target_name, message_type, status, error_message, excerpt
		FROM message_logs
		WHERE (cardinality($1::text[]) = 0 OR message_type = ANY($1))
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, pq.Array(types), f.Status, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: recent logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var msgType string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UserID, &e.TargetName, &msgType, &e.Status, &e.ErrorMessage, &e.Excerpt); err != nil {
			return nil, fmt.Errorf("messaging: scan log: %w", err)
		}
		e.MessageType = MessageType(msgType)
		out = append(out, e)
	}
	return out, rows.Err()
}
