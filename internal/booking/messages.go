package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

func dateLabel(date string, loc *time.Location, now time.Time) string {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s (%s)", d.Format("01/02"), reminders.RelativeLabel(d, now.In(loc)))
}

// ConfirmationText is the patient message for a new booking.
func ConfirmationText(a *appointments.Appointment, loc *time.Location, now time.Time) string {
	return fmt.Sprintf("預約成功！\n日期：%s\n時間：%s\n項目：%s\n\n如需取消請輸入「取消」。",
		dateLabel(a.Date, loc, now), reminders.FormatClock(a.Time), a.ServiceType.Label())
}

// CancellationText tells a patient their booking was cancelled by the clinic.
func CancellationText(a *appointments.Appointment) string {
	return fmt.Sprintf("您 %s %s 的%s預約已由診所取消，如有疑問請與我們聯繫。",
		shortDate(a.Date), reminders.FormatClock(a.Time), a.ServiceType.Label())
}

// ClosureText tells a patient a closed day cancelled their bookings.
func ClosureText(clinicName, date, reason string, times []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "很抱歉，%s於 %s 臨時休診", clinicName, shortDate(date))
	if reason != "" {
		fmt.Fprintf(&b, "（%s）", reason)
	}
	b.WriteString("，您當天的預約已取消：\n")
	for _, t := range times {
		b.WriteString("• " + reminders.FormatClock(t) + "\n")
	}
	b.WriteString("\n請重新預約，造成不便敬請見諒。")
	return b.String()
}

func shortDate(date string) string {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("01/02")
}
