package snapshot

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var dateLayouts = []string{"2006-01-02", "20060102", "2006-01-02 15:04:05", time.RFC3339}

// parseDate accepts ISO dates, compact YYYYMMDD and timestamps.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("snapshot: invalid date %q", s)
}

// parseOptionalDate returns nil for an empty field.
func parseOptionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseFloat returns nil for empty or null-marked fields.
func parseFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "na", "nan":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("snapshot: invalid number %q", s)
	}
	return &v, nil
}

// parseBool reads the flag spellings found in vendor extracts.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "", "0", "f", "false", "n", "no":
		return false, nil
	}
	return false, eris.Errorf("snapshot: invalid flag %q", s)
}
