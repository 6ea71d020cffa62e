package trending

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006 Jan 2",
	"Jan, 2006",
	"January, 2006",
	"2006 Jan",
	"Jan 2006",
	"2006",
}

// ParseDate parses the publication date formats found in catalogs and
// esummary records. Dates without a zone are read as UTC.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
