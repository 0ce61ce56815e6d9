package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// OpenTimes returns the distinct times of open slots on date, sorted ascending,
// after applying the minimum lead time.
//
// now must already be in the studio timezone. With cutoff = now+leadTime: dates
// before cutoff's date yield nothing, cutoff's own date drops times earlier than
// cutoff's time of day, later dates are unfiltered.
func OpenTimes(slots []model.Slot, date string, now time.Time, leadTime time.Duration) []string {
	cutoff := now.Add(leadTime)
	cutoffDate := cutoff.Format(DateLayout)
	if date < cutoffDate {
		return []string{}
	}
	minTime := ""
	if date == cutoffDate {
		minTime = cutoff.Format(TimeLayout)
	}

	seen := make(map[string]struct{}, len(slots))
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		if !s.IsAvailable || s.Date != date {
			continue
		}
		// HH:MM compares correctly as a string.
		if minTime != "" && s.Time < minTime {
			continue
		}
		if _, ok := seen[s.Time]; ok {
			continue
		}
		seen[s.Time] = struct{}{}
		times = append(times, s.Time)
	}
	sort.Strings(times)
	return times
}

// HourlyTimes stamps out one time per hour from start to end inclusive, skipping
// times inside [skipFrom, skipTo]. An empty skip window disables skipping.
func HourlyTimes(start, end, skipFrom, skipTo string) ([]string, error) {
	from, err := time.Parse(TimeLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q", start)
	}
	to, err := time.Parse(TimeLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end time %q", end)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end time %s is before start time %s", end, start)
	}
	skip := skipFrom != "" && skipTo != ""
	if skip {
		if _, err := time.Parse(TimeLayout, skipFrom); err != nil {
			return nil, fmt.Errorf("invalid skip_from %q", skipFrom)
		}
		if _, err := time.Parse(TimeLayout, skipTo); err != nil {
			return nil, fmt.Errorf("invalid skip_to %q", skipTo)
		}
	}

	var times []string
	for t := from; !t.After(to); t = t.Add(time.Hour) {
		hhmm := t.Format(TimeLayout)
		if skip && hhmm >= skipFrom && hhmm <= skipTo {
			continue
		}
		times = append(times, hhmm)
	}
	return times, nil
}

// Start resolves a slot's wall-clock date and time in loc.
func Start(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
}

// Expired reports whether a slot started more than grace before now.
func Expired(slot model.Slot, now time.Time, grace time.Duration) bool {
	start, err := Start(slot.Date, slot.Time, now.Location())
	if err != nil {
		return false
	}
	return start.Before(now.Add(-grace))
}

// ExpiredIDs filters slots down to the ids Expired reports.
func ExpiredIDs(slots []model.Slot, now time.Time, grace time.Duration) []string {
	var ids []string
	for _, s := range slots {
		if Expired(s, now, grace) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// MeetsLeadTime reports whether a booking at date/clock respects the lead time rule.
func MeetsLeadTime(date, clock string, now time.Time, leadTime time.Duration) bool {
	times := OpenTimes([]model.Slot{{Date: date, Time: clock, IsAvailable: true}}, date, now, leadTime)
	return len(times) == 1
}
