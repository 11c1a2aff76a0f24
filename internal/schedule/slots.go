package schedule

import "sort"

// Expand turns the active templates matching weekday and service into the
// ascending, de-duplicated list of slot times. Each template contributes every
// quarter hour from its start through its end inclusive. Templates whose start
// is after their end, or whose times do not parse, contribute nothing.
func Expand(templates []Template, weekday Weekday, service ServiceType) []string {
	seen := make(map[int]struct{})
	for _, t := range templates {
		if !t.Active || t.Weekday != weekday || t.ServiceType != service {
			continue
		}
		start, err := ParseClock(t.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(t.EndTime)
		if err != nil || start > end {
			continue
		}
		for m := start; m <= end; m += int(SlotStep.Minutes()) {
			seen[m] = struct{}{}
		}
	}

	minutes := make([]int, 0, len(seen))
	for m := range seen {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	out := make([]string, len(minutes))
	for i, m := range minutes {
		out[i] = FormatClock(m)
	}
	return out
}
