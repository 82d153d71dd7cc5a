package server

import (
	"strings"
	"time"
)

// orderDateRange reads the startDate/endDate filters. RFC3339 values are used
// as given; a bare YYYY-MM-DD widens to the start or the end of that UTC day
// so endDate=2024-05-01 still matches orders placed that evening.
func orderDateRange(startDate, endDate string) (start, end *time.Time, err error) {
	start, ok := parseDateBound(startDate, false)
	if !ok {
		return nil, nil, newValidationError("startDate", "invalid_start_date", "invalid start date")
	}
	end, ok = parseDateBound(endDate, true)
	if !ok {
		return nil, nil, newValidationError("endDate", "invalid_end_date", "invalid end date")
	}
	return start, end, nil
}

func parseDateBound(value string, endOfDay bool) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, true
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, true
}
