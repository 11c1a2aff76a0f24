package messaging

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Outbound is one message addressed to one user.
type Outbound struct {
	UserID     string
	TargetName string
	Type       MessageType
	Text       string
}

// AuditLog receives every send attempt.
type AuditLog interface {
	Append(ctx context.Context, e LogEntry) error
}

// MetricsRecorder counts outbound messages.
type MetricsRecorder interface {
	ObserveMessage(messageType, status string)
}

// Outbox wraps a Sender so every attempt, successful or not, lands in the
// message log. A log write failure never masks the send result.
type Outbox struct {
	sender  Sender
	log     AuditLog
	metrics MetricsRecorder
	logger  *logging.Logger
	now     func() time.Time
}

// NewOutbox wraps sender. log and metrics may be nil.
func NewOutbox(sender Sender, log AuditLog, metrics MetricsRecorder, logger *logging.Logger) *Outbox {
	if logger == nil {
		logger = logging.Default()
	}
	return &Outbox{sender: sender, log: log, metrics: metrics, logger: logger, now: time.Now}
}

// Deliver sends msg and records the outcome. It returns the send error.
func (o *Outbox) Deliver(ctx context.Context, msg Outbound) error {
	sendErr := o.sender.Send(ctx, msg.UserID, msg.Text)

	entry := LogEntry{
		CreatedAt:   o.now().UTC(),
		UserID:      msg.UserID,
		TargetName:  msg.TargetName,
		MessageType: msg.Type,
		Status:      StatusSuccess,
		Excerpt:     msg.Text,
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = sendErr.Error()
		o.logger.Warn("outbound message failed", "user_id", msg.UserID, "type", msg.Type, "error", sendErr)
	}
	if o.metrics != nil {
		o.metrics.ObserveMessage(string(msg.Type), entry.Status)
	}
	if o.log != nil {
		if err := o.log.Append(ctx, entry); err != nil {
			o.logger.Error("failed to append message log", "error", err, "user_id", msg.UserID, "type", msg.Type)
		}
	}
	return sendErr
}

// Send satisfies Sender for callers that do not care about the log metadata.
func (o *Outbox) Send(ctx context.Context, userID, text string) error {
	return o.Deliver(ctx, Outbound{UserID: userID, Type: TypeCustom, Text: text})
}
