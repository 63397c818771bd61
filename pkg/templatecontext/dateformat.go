package templatecontext

import (
	"fmt"
	"strings"
	"time"
)

const (
	hoursPerDay = 8
	daysPerWeek = 5
)

// DateFormatter renders times in the configured zone and layout.
type DateFormatter struct {
	loc    *time.Location
	layout string
}

func NewDateFormatter(loc *time.Location, layout string) DateFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return DateFormatter{loc: loc, layout: layout}
}

// Format renders a timestamp; the zero time renders empty.
func (f DateFormatter) Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(f.layout)
}

// FormatDate renders only the day.
func (f DateFormatter) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format("02/Jan/06")
}

// Duration renders logged work in tracker units, where a day is 8 hours and a
// week is 5 days, e.g. "1w 2d 3h 30m".
func (f DateFormatter) Duration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	minutes := int64(d / time.Minute)
	units := []struct {
		suffix string
		size   int64
	}{
		{"w", 60 * hoursPerDay * daysPerWeek},
		{"d", 60 * hoursPerDay},
		{"h", 60},
		{"m", 1},
	}
	var parts []string
	for _, u := range units {
		if n := minutes / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			minutes -= n * u.size
		}
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}
