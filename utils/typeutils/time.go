package typeutils

import (
	"fmt"
	"time"
)

// TimestampFormat is the canonical bookmark rendering: microsecond UTC zulu.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp renderings seen on the wire; layouts
// without an explicit zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp [%s]", value)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
