package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source date layouts.
const (
	LayoutISO      = "2006-01-02"
	LayoutSlashed  = "2006/01/02"
	LayoutUS       = "01/02/2006"
	LayoutTracking = "02/01/2006"
)

// Date is a civil date without time or zone. The zero value means absent.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses value with layout. Out-of-range days and months are
// rejected.
func ParseDate(layout, value string) (Date, error) {
	t, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// ParseISOPrefix keeps the text before the first "T" and parses it as
// yyyy-MM-dd.
func ParseISOPrefix(value string) (Date, error) {
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		value = value[:i]
	}
	return ParseDate(LayoutISO, value)
}

// IsZero reports whether the date is absent.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) format(layout string) string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(layout)
}

// String renders yyyy-MM-dd, or "" when absent.
func (d Date) String() string {
	return d.format(LayoutISO)
}

// Slashed renders yyyy/MM/dd, or "" when absent.
func (d Date) Slashed() string {
	return d.format(LayoutSlashed)
}

// MarshalJSON encodes the date as "yyyy-MM-dd" or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "yyyy-MM-dd", an ISO timestamp, "" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISOPrefix(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
