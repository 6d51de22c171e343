package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeFormat sorts lexically, so ORDER BY on time columns is chronological.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalAddresses(addrs []string) (string, error) {
	if addrs == nil {
		addrs = []string{}
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return "", fmt.Errorf("marshal addresses: %w", err)
	}
	return string(b), nil
}

func unmarshalAddresses(s string) ([]string, error) {
	var addrs []string
	if err := json.Unmarshal([]byte(s), &addrs); err != nil {
		return nil, fmt.Errorf("unmarshal addresses: %w", err)
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	return addrs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
