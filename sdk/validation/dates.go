package validation

import (
	"fmt"
	"time"
)

// dateFormats is ordered so the unambiguous forms win: full RFC 3339 and ISO
// dates first, then the slash and dash variants people actually type.
var dateFormats = []string{
	time.RFC3339,
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
	"01/02/06",
	"01-02-2006",
	"01-02-06",
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	"02-01-06",
}

// ParseFlexibleDate parses a date string, trying each supported format in
// turn. Ambiguous day/month inputs resolve to the US ordering.
func ParseFlexibleDate(dateStr string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
