package booking

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// CalendarFeed renders appointments as an iCalendar document. Each booking
// is one slot long; times are written in UTC.
func CalendarFeed(clinicName string, appts []appointments.Appointment, loc *time.Location, stamp time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//clinic-booking//appointments//ZH-TW")
	cal.SetXWRCalName(clinicName + " 預約")

	for _, a := range appts {
		start, err := schedule.SlotStart(a.Date, a.Time, loc)
		if err != nil {
			return "", fmt.Errorf("booking: calendar event %s: %w", a.ID, err)
		}
		event := cal.AddEvent(a.ID.String() + "@clinic-booking")
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(start.UTC())
		event.SetEndAt(start.Add(schedule.SlotStep).UTC())
		event.SetSummary(fmt.Sprintf("%s %s", clinicName, a.ServiceType.Label()))
		event.SetLocation(clinicName)
		event.SetStatus(ics.ObjectStatusConfirmed)
	}
	return cal.Serialize(), nil
}
