package util

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

const ISO8601 = "2006-01-02T15:04:05.000Z"

const ISO8601_milli = "2006-01-02T15:04:05.000000Z"

const ISO8601_numtz = "2006-01-02T15:04:05.000-07:00"

const ISO8601_numtz_milli = "2006-01-02T15:04:05.000000-07:00"

const ISO8601_sec = "2006-01-02T15:04:05Z"

const ISO8601_numtz_sec = "2006-01-02T15:04:05-07:00"

var timestampLayouts = []string{
	ISO8601,
	ISO8601_milli,
	ISO8601_numtz,
	ISO8601_numtz_milli,
	ISO8601_sec,
	ISO8601_numtz_sec,
	time.RFC3339Nano,
}

// Parses the ISO 8601 timestamp variants Mastodon (and Rails in general) emit.
// The result is always in UTC. Falls back to dateparse for anything unusual,
// which is interpreted in UTC when no zone is present.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("failed to parse %q as timestamp", s)
}
