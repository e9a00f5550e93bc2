package translate

import (
	"fmt"
	"strings"
	"time"
)

// Catalogue time formats observed in OData and STAC responses.
// OData uses "2023-01-05T10:14:11.024Z", STAC uses RFC 3339.
var catalogueTimeFormats = []string{
	time.RFC3339Nano,              // "2006-01-02T15:04:05.999999999Z07:00"
	time.RFC3339,                  // "2006-01-02T15:04:05Z07:00"
	"2006-01-02T15:04:05.000000",  // microseconds without timezone
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// DayLayout is the dd/mm/YYYY layout accepted for date bounds on the CLI.
const DayLayout = "02/01/2006"

// FileDayLayout is the dd-mm-YYYY layout used in output file names.
const FileDayLayout = "02-01-2006"

// ParseCatalogueTime parses a catalogue timestamp into UTC.
func ParseCatalogueTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	var lastErr error
	for _, format := range catalogueTimeFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse catalogue time %q: %w", s, lastErr)
}

// ParseDay parses a dd/mm/YYYY date (UTC midnight). ISO dates (YYYY-MM-DD)
// are accepted as well.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DayLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q (want dd/mm/YYYY)", ErrInvalidDateTime, s)
}

// ParseFileDay parses the dd-mm-YYYY date used in output file names.
func ParseFileDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(FileDayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want dd-mm-YYYY)", ErrInvalidDateTime, s)
	}
	return t, nil
}

// FormatFileDay formats t as dd-mm-YYYY in UTC.
func FormatFileDay(t time.Time) string {
	return t.UTC().Format(FileDayLayout)
}

// FormatSTACTime formats a time.Time as RFC3339 for STAC.
func FormatSTACTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseDateTimeInterval parses a STAC datetime parameter which can be:
// - A single RFC3339 datetime: "2023-06-15T14:00:00Z"
// - An open-ended interval: "../2023-06-15T14:00:00Z" or "2023-06-15T14:00:00Z/.."
// - A closed interval: "2023-06-15T14:00:00Z/2023-06-16T14:00:00Z"
// Returns start and end times. Either may be nil for open-ended intervals.
func ParseDateTimeInterval(datetime string) (*time.Time, *time.Time, error) {
	datetime = strings.TrimSpace(datetime)
	if datetime == "" {
		return nil, nil, nil
	}

	if !strings.Contains(datetime, "/") {
		t, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDateTime, err)
		}
		return &t, &t, nil
	}

	parts := strings.Split(datetime, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: interval must be 'start/end'", ErrInvalidDateTime)
	}

	var start, end *time.Time
	if s := strings.TrimSpace(parts[0]); s != "" && s != ".." {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid start: %v", ErrInvalidDateTime, err)
		}
		start = &t
	}
	if s := strings.TrimSpace(parts[1]); s != "" && s != ".." {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid end: %v", ErrInvalidDateTime, err)
		}
		end = &t
	}

	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("%w: end before start", ErrInvalidDateTime)
	}

	return start, end, nil
}
