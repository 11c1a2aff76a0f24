package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// StaffNotifier emails the clinic's staff inbox.
type StaffNotifier struct {
	email      EmailSender
	to         string
	clinicName string
	logger     *logging.Logger
}

// NewStaffNotifier returns a notifier that does nothing when to is empty.
func NewStaffNotifier(email EmailSender, to, clinicName string, logger *logging.Logger) *StaffNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &StaffNotifier{email: email, to: strings.TrimSpace(to), clinicName: clinicName, logger: logger}
}

// NotifyClosure sends staff the list of bookings a closed day cancelled so
// they can follow up with each patient.
func (n *StaffNotifier) NotifyClosure(ctx context.Context, date, reason string, cancelled []appointments.Appointment) error {
	if n == nil || n.email == nil || n.to == "" {
		return nil
	}
	sorted := append([]appointments.Appointment(nil), cancelled...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Time != sorted[j].Time {
			return sorted[i].Time < sorted[j].Time
		}
		return sorted[i].ServiceType < sorted[j].ServiceType
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s 已設定為休診日", date)
	if reason != "" {
		fmt.Fprintf(&b, "（%s）", reason)
	}
	b.WriteString("。\n\n")
	if len(sorted) == 0 {
		b.WriteString("當天沒有需要取消的預約。\n")
	} else {
		fmt.Fprintf(&b, "已取消 %d 筆預約：\n", len(sorted))
		for _, a := range sorted {
			fmt.Fprintf(&b, "• %s %s %s (%s)\n", a.Time, a.ServiceType.Label(), a.UserName, a.UserID)
		}
	}

	err := n.email.Send(ctx, EmailMessage{
		To:      n.to,
		Subject: fmt.Sprintf("[%s] 休診通知 %s：取消 %d 筆預約", n.clinicName, date, len(sorted)),
		Body:    b.String(),
	})
	if err != nil {
		n.logger.Error("closure email failed", "date", date, "error", err)
		return err
	}
	return nil
}
