package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimestampParse marks a record whose timestamp cannot be interpreted.
var ErrTimestampParse = errors.New("unparseable timestamp")

// Zone-less layouts are what the pipeline's writer emits (ISO-8601 local
// time); they are interpreted in the caller's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp converts a record timestamp to an absolute instant.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrTimestampParse)
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampParse, s)
}

// Time parses the record's own timestamp.
func (r *TraceRecord) Time(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(r.Timestamp, loc)
}
