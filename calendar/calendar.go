// Package calendar rolls option expiry dates onto business days.
package calendar

import (
	"fmt"
	"time"
)

// Calendar is a weekend rule plus an explicit holiday set. The zero value
// is a weekends-only calendar.
type Calendar struct {
	holidays map[string]struct{}
}

// New builds a calendar from holiday dates.
func New(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format("2006-01-02")] = struct{}{}
	}
	return c
}

// Parse builds a calendar from YYYY-MM-DD holiday strings.
func Parse(holidays []string) (*Calendar, error) {
	dates := make([]time.Time, 0, len(holidays))
	for _, h := range holidays {
		d, err := time.Parse("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("calendar.Parse: invalid holiday %q: %w", h, err)
		}
		dates = append(dates, d)
	}
	return New(dates...), nil
}

func (c *Calendar) isHoliday(t time.Time) bool {
	if c == nil || c.holidays == nil {
		return false
	}
	_, ok := c.holidays[t.Format("2006-01-02")]
	return ok
}

// IsBusinessDay checks weekends and the holiday set.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.isHoliday(t)
}

// Adjust applies Modified Following.
func (c *Calendar) Adjust(t time.Time) time.Time {
	origMonth := t.Month()
	adjusted := c.AdjustFollowing(t)
	if adjusted.Month() == origMonth {
		return adjusted
	}
	adjusted = t.AddDate(0, 0, -1)
	for !c.IsBusinessDay(adjusted) {
		adjusted = adjusted.AddDate(0, 0, -1)
	}
	return adjusted
}

// AdjustFollowing applies a simple Following convention (no month preservation).
func (c *Calendar) AdjustFollowing(t time.Time) time.Time {
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if c.IsBusinessDay(t) {
			n -= step
		}
	}
	return t
}
