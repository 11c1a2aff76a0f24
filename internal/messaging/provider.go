// Package messaging delivers outbound chat messages, records every attempt in
// the append-only message log, and flushes staff-scheduled custom messages.
package messaging

import (
	"context"
	"strings"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Sender delivers one text message to one chat user. A nil error means the
// transport accepted the message.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// MessageType tags outbound messages in the log.
type MessageType string

const (
	TypeReminderDaily        MessageType = "reminder_daily"
	TypeReminderWeekly       MessageType = "reminder_weekly"
	TypeReminderManual       MessageType = "reminder_manual"
	TypeAppointmentConfirmed MessageType = "appointment_confirmed"
	TypeAppointmentCancelled MessageType = "appointment_cancelled"
	TypeClinicClosed         MessageType = "clinic_closed"
	TypeCustom               MessageType = "custom"
)

// StubSender logs messages instead of sending them. Used when no bot token is configured.
type StubSender struct {
	logger *logging.Logger
}

func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger}
}

func (s *StubSender) Send(ctx context.Context, userID, text string) error {
	s.logger.Info("stub sender: would send message", "user_id", userID, "excerpt", Excerpt(text))
	return nil
}

// BuildSender returns the Telegram sender when a token is configured and the
// stub otherwise, along with the name of the transport selected.
func BuildSender(token string, logger *logging.Logger) (Sender, string, error) {
	if strings.TrimSpace(token) == "" {
		return NewStubSender(logger), "stub", nil
	}
	sender, err := NewTelegramSenderFromToken(token, logger)
	if err != nil {
		return nil, "", err
	}
	return sender, "telegram", nil
}

const excerptRunes = 100

// Excerpt truncates text to the length stored in the message log.
func Excerpt(text string) string {
	r := []rune(text)
	if len(r) <= excerptRunes {
		return text
	}
	return string(r[:excerptRunes])
}
