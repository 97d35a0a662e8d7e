package domain

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrValidation)
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return Date(t).Format(DateLayout)
}

type DateRange struct {
	From time.Time
	To   time.Time
}

func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: Date(from), To: Date(to)}
	if r.To.Before(r.From) {
		return DateRange{}, fmt.Errorf("%w: date range ends before it starts", ErrValidation)
	}
	return r, nil
}

func (r DateRange) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(r.From) && !d.After(r.To)
}
