package db

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseScannedDate extracts the calendar date from a value scanned off an
// aggregate expression. Expressions carry no column decltype, so drivers hand
// the date back as text in dialect-specific layouts; all of them lead with
// YYYY-MM-DD.
func ParseScannedDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("malformed date %q", raw)
	}
	t, err := time.Parse(dateLayout, raw[:len(dateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", raw, err)
	}
	return t, nil
}
