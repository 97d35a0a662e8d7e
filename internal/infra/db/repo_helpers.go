package db

import (
	"time"

	"reconledger/internal/domain"
)

func stringPtrIfNotEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// normalizeTime matches Postgres timestamp precision so values read back
// compare equal to the ones written.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func parseStoredDate(value string) time.Time {
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
