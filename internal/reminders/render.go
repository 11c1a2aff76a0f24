// Package reminders turns confirmed appointments into one reminder per user
// per day and hands them to the outbound messenger.
package reminders

import (
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/users"
)

// Selector picks which users a sweep reaches.
type Selector string

const (
	SelectDaily  Selector = "daily"
	SelectWeekly Selector = "weekly"
	SelectAll    Selector = "all"
)

// ParseSelector accepts daily, weekly or all.
func ParseSelector(s string) (Selector, bool) {
	switch sel := Selector(strings.ToLower(strings.TrimSpace(s))); sel {
	case SelectDaily, SelectWeekly, SelectAll:
		return sel, true
	}
	return "", false
}

// Selects reports whether a user with the given preference is reached. Daily
// sweeps reach exactly the daily users and weekly sweeps reach everyone else,
// so every user falls in exactly one of the two.
func Selects(sel Selector, pref users.Cadence) bool {
	switch sel {
	case SelectDaily:
		return pref == users.CadenceDaily
	case SelectWeekly:
		return pref != users.CadenceDaily
	case SelectAll:
		return true
	}
	return false
}

// Slot is one booked time inside a reminder.
type Slot struct {
	Time        string
	ServiceType schedule.ServiceType
}

// Reminder bundles one user's bookings on one date.
type Reminder struct {
	UserID   string
	UserName string
	Date     string
	Slots    []Slot
}

// Group builds one reminder per (user, date), slots ordered by time then
// service type, reminders ordered by date then user id. Bookings of different
// services at the same time stay separate lines.
func Group(appts []appointments.Appointment) []Reminder {
	type key struct{ user, date string }
	index := map[key]int{}
	var out []Reminder
	for _, a := range appts {
		k := key{a.UserID, a.Date}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Reminder{UserID: a.UserID, UserName: a.UserName, Date: a.Date})
		}
		out[i].Slots = append(out[i].Slots, Slot{Time: a.Time, ServiceType: a.ServiceType})
	}
	for i := range out {
		slots := out[i].Slots
		sort.Slice(slots, func(a, b int) bool {
			if slots[a].Time != slots[b].Time {
				return slots[a].Time < slots[b].Time
			}
			return serviceOrder(slots[a].ServiceType) < serviceOrder(slots[b].ServiceType)
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func serviceOrder(s schedule.ServiceType) int {
	for i, known := range schedule.ServiceTypes {
		if known == s {
			return i
		}
	}
	return len(schedule.ServiceTypes)
}

var weekdayNames = [...]string{"週日", "週一", "週二", "週三", "週四", "週五", "週六"}

// RelativeLabel names date relative to today on the clinic calendar: 今天,
// 明天, 下週X for next Monday-based week, otherwise 週X.
func RelativeLabel(date, today time.Time) string {
	d := civil(date)
	t := civil(today)
	switch days := int(d.Sub(t).Hours() / 24); {
	case days == 0:
		return "今天"
	case days == 1:
		return "明天"
	}
	name := weekdayNames[d.Weekday()]
	if mondayOf(d).Equal(mondayOf(t).AddDate(0, 0, 7)) {
		return "下" + name
	}
	return name
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// FormatClock renders "14:15" as "下午 02:15".
func FormatClock(clock string) string {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return clock
	}
	s := t.Format("PM 03:04")
	return strings.NewReplacer("AM", "上午", "PM", "下午").Replace(s)
}

// Render fills template placeholders for r. today must be in the clinic zone.
func Render(template string, r Reminder, today time.Time) string {
	date, err := time.Parse(schedule.DateLayout, r.Date)
	if err != nil {
		return template
	}
	lines := make([]string, len(r.Slots))
	for i, slot := range r.Slots {
		lines[i] = "• " + FormatClock(slot.Time)
		if slot.ServiceType != "" {
			lines[i] += " " + slot.ServiceType.Label()
		}
	}
	label := RelativeLabel(date, today)
	return strings.NewReplacer(
		"{user_name}", r.UserName,
		"{date_keyword}", label,
		"{date}", date.Format("01/02"),
		"{weekday}", label,
		"{time_slots}", strings.Join(lines, "\n"),
	).Replace(template)
}
