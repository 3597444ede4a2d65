package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// TimeLayout is the stored notification_time format.
	TimeLayout = "15:04:05"
	// DateLayout is the stored entry_date / last_notification_sent format.
	DateLayout = "2006-01-02"
)

var timeOfDayRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// TimeOfDay normalises "H:MM", "HH:MM" or "HH:MM:SS" to "HH:MM:SS".
func TimeOfDay(raw string) (string, error) {
	m := timeOfDayRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", raw)
	}

	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || minute > 59 || sec > 59 {
		return "", fmt.Errorf("invalid time of day %q: out of range", raw)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, minute, sec), nil
}

// Date validates a YYYY-MM-DD calendar date and returns it unchanged.
func Date(raw string) (string, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
	}
	return d.Format(DateLayout), nil
}

// Timezone checks that name is a loadable IANA zone.
func Timezone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Clock formats t as the wall-clock time and date in loc after truncating it
// to precision. These are the values the reminder query matches against.
func Clock(t time.Time, loc *time.Location, precision time.Duration) (clock, date string) {
	local := t.In(loc)
	if precision > time.Second {
		// Truncate on the local wall clock so hour/minute boundaries line up
		// for zones with non-hour offsets.
		sinceMidnight := time.Duration(local.Hour())*time.Hour +
			time.Duration(local.Minute())*time.Minute +
			time.Duration(local.Second())*time.Second
		local = local.Add(-(sinceMidnight % precision))
	}
	return local.Format(TimeLayout), local.Format(DateLayout)
}

// MonthRange returns the first and last day of t's month in loc.
func MonthRange(t time.Time, loc *time.Location) (start, end string) {
	local := t.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	return first.Format(DateLayout), last.Format(DateLayout)
}
