// Package appointments is the booking ledger: the system of record for
// appointments and the owner of the one-confirmed-booking-per-slot rule.
package appointments

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Status is the booking lifecycle state. Only confirmed rows hold a slot.
type Status string

const (
	StatusConfirmed         Status = "confirmed"
	StatusCancelled         Status = "cancelled"
	StatusCancelledByClinic Status = "cancelled_by_clinic"
)

// ReplyStatus tracks whether the patient answered a reminder.
type ReplyStatus string

const (
	ReplyUnreplied ReplyStatus = "未回覆"
	ReplyReplied   ReplyStatus = "已回覆"
	ReplyConfirmed ReplyStatus = "已確認"
)

// Appointment is one booking of one slot. UserName is a snapshot taken at
// booking time; it only changes through PropagateUserName.
type Appointment struct {
	ID          uuid.UUID            `json:"id"`
	UserID      string               `json:"user_id"`
	UserName    string               `json:"user_name"`
	Date        string               `json:"date"`
	Time        string               `json:"time"`
	ServiceType schedule.ServiceType `json:"service_type"`
	Status      Status               `json:"status"`
	ReplyStatus ReplyStatus          `json:"reply_status"`
	LastReply   string               `json:"last_reply,omitempty"`
	ReplyTime   *time.Time           `json:"reply_time,omitempty"`
	ConfirmTime *time.Time           `json:"confirm_time,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Slot identifies one bookable unit.
type Slot struct {
	Date        string               `json:"date"`
	Time        string               `json:"time"`
	ServiceType schedule.ServiceType `json:"service_type"`
}

func (a Appointment) Slot() Slot {
	return Slot{Date: a.Date, Time: a.Time, ServiceType: a.ServiceType}
}

// Validate checks the slot coordinates are well formed.
func (s Slot) Validate() error {
	if _, err := schedule.ParseDate(s.Date, time.UTC); err != nil {
		return err
	}
	if _, err := schedule.ParseClock(s.Time); err != nil {
		return err
	}
	if !s.ServiceType.Valid() {
		return apperrors.Validation("unknown service type %q", s.ServiceType)
	}
	return nil
}
