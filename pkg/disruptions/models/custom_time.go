package models

import (
	"fmt"
	"strings"
	"time"
)

// CustomTime handles time parsing for NS API timestamps, which appear
// both with RFC 3339 offsets and with the compact "+0200" form, and
// occasionally without any timezone at all
type CustomTime struct {
	time.Time
}

// UnmarshalJSON handles parsing of the timestamp variants seen in the feed
func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}

	// Try parsing with different formats
	formats := []string{
		time.RFC3339,                  // Standard format with timezone
		"2006-01-02T15:04:05-0700",    // Offset without colon, as sent by the gateway
		"2006-01-02T15:04:05.999999",  // With microseconds, no timezone
		"2006-01-02T15:04:05",         // Without timezone
		time.RFC3339Nano,              // With nanoseconds
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			// Assume Dutch timezone (Europe/Amsterdam) for timestamps without timezone
			if !hasZoneDesignator(s) {
				loc, err := time.LoadLocation("Europe/Amsterdam")
				if err == nil {
					t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
				}
			}
			ct.Time = t
			return nil
		}
		parseErr = err
	}

	return fmt.Errorf("unable to parse time %q: %w", s, parseErr)
}

// MarshalJSON converts the time back to JSON
func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("\"%s\"", ct.Time.Format(time.RFC3339))), nil
}

// hasZoneDesignator reports whether the timestamp carries an explicit
// zone (Z suffix or a +/- offset after the time portion)
func hasZoneDesignator(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	// Offsets only occur after the "T<time>" portion; a '-' before it is a date separator
	idx := strings.IndexByte(s, 'T')
	if idx < 0 {
		return false
	}
	rest := s[idx+1:]
	return strings.ContainsAny(rest, "+-")
}
