// Package timezone formats conversation timestamps in the configured timezone.
package timezone

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// TimezoneUTC is the UTC timezone identifier
	TimezoneUTC = "UTC"

	// LineTimeLayout is how times appear in prompts and greeting replies.
	LineTimeLayout = "2006-01-02 15:04:05"
)

// ParseTimezone parses an IANA timezone identifier (e.g., "Asia/Taipei").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == TimezoneUTC {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, errors.Wrapf(err, "invalid timezone %q", tz)
	}
	return loc, nil
}

// FormatTimestamp formats unix seconds with LineTimeLayout in tz (UTC when nil).
func FormatTimestamp(ts int64, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return time.Unix(ts, 0).In(tz).Format(LineTimeLayout)
}

// FromUnixMilli converts a platform event timestamp (unix milliseconds) to unix seconds.
// A non-positive value yields the current time.
func FromUnixMilli(ms int64) int64 {
	if ms <= 0 {
		return time.Now().Unix()
	}
	return time.UnixMilli(ms).Unix()
}
