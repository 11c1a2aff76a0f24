package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ScheduledQueue is the subset of ScheduledStore the flusher needs.
type ScheduledQueue interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledMessage, error)
	MarkResult(ctx context.Context, id uuid.UUID, sendErr error, at time.Time) error
}

// Recipients lists every user a broadcast reaches.
type Recipients interface {
	AllIDs(ctx context.Context) ([]string, error)
}

// Deliverer sends one message and records it.
type Deliverer interface {
	Deliver(ctx context.Context, msg Outbound) error
}

// Flusher sends scheduled custom messages whose time has come.
type Flusher struct {
	queue      ScheduledQueue
	recipients Recipients
	out        Deliverer
	logger     *logging.Logger
	batch      int
}

func NewFlusher(queue ScheduledQueue, recipients Recipients, out Deliverer, logger *logging.Logger) *Flusher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Flusher{queue: queue, recipients: recipients, out: out, logger: logger, batch: 50}
}

// FlushDue sends every due message once. A broadcast is marked failed only
// when no recipient received it.
func (f *Flusher) FlushDue(ctx context.Context, now time.Time) (sent, failed int, err error) {
	due, err := f.queue.ClaimDue(ctx, now, f.batch)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range due {
		targets := []string{m.UserID}
		if m.UserID == "" {
			targets, err = f.recipients.AllIDs(ctx)
			if err != nil {
				f.markResult(ctx, m.ID, err, now)
				return sent, failed, err
			}
		}

		var lastErr error
		delivered := 0
		for _, userID := range targets {
			if sendErr := f.out.Deliver(ctx, Outbound{UserID: userID, Type: TypeCustom, Text: m.Body}); sendErr != nil {
				lastErr = sendErr
				failed++
				continue
			}
			delivered++
			sent++
		}
		var result error
		if delivered == 0 && lastErr != nil {
			result = lastErr
		}
		f.markResult(ctx, m.ID, result, now)
	}
	return sent, failed, nil
}

func (f *Flusher) markResult(ctx context.Context, id uuid.UUID, result error, now time.Time) {
	if err := f.queue.MarkResult(ctx, id, result, now); err != nil {
		f.logger.Error("failed to mark scheduled message", "id", id, "error", err)
	}
}
