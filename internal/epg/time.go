// SPDX-License-Identifier: MIT

package epg

import (
	"fmt"
	"strings"
	"time"
)

const (
	xmltvLayout       = "20060102150405 -0700"
	xmltvLayoutNoZone = "20060102150405"
)

// ParseTime parses an XMLTV timestamp ("YYYYMMDDHHMMSS +ZZZZ"). A missing
// offset is read as UTC; shorter precision (YYYYMMDDHHMM) is accepted.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty xmltv time")
	}

	stamp, zone, _ := strings.Cut(s, " ")
	if len(stamp) == 12 {
		stamp += "00"
	}
	if len(stamp) != 14 {
		return time.Time{}, fmt.Errorf("invalid xmltv time %q", s)
	}

	if zone == "" {
		t, err := time.ParseInLocation(xmltvLayoutNoZone, stamp, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid xmltv time %q: %w", s, err)
		}
		return t, nil
	}

	t, err := time.Parse(xmltvLayout, stamp+" "+strings.TrimSpace(zone))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid xmltv time %q: %w", s, err)
	}
	return t, nil
}

// FormatTime formats t in XMLTV format.
func FormatTime(t time.Time) string {
	return t.Format(xmltvLayout)
}
