package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Calendar answers trading-day questions against a weekend rule plus an
// injected holiday table. The table is configuration data loaded at startup
// (config/holidays.yaml); for years it does not cover, Calendar degrades to
// weekend-only adjustment and logs the approximation once per year.
type Calendar struct {
	holidays map[string]struct{}
	years    map[int]struct{}
	logger   *zap.Logger

	mu     sync.Mutex
	warned map[int]struct{}
}

// NewCalendar builds a calendar from holiday dates in "2006-01-02" form.
// Malformed entries are skipped with a warning rather than rejected, so a
// bad line in the data file cannot take the engine down.
func NewCalendar(holidays []string, logger *zap.Logger) *Calendar {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Calendar{
		holidays: make(map[string]struct{}, len(holidays)),
		years:    make(map[int]struct{}),
		logger:   logger,
		warned:   make(map[int]struct{}),
	}
	for _, h := range holidays {
		d, err := time.Parse("2006-01-02", h)
		if err != nil {
			logger.Warn("Skipping malformed holiday entry", zap.String("entry", h))
			continue
		}
		c.holidays[h] = struct{}{}
		c.years[d.Year()] = struct{}{}
	}
	return c
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// IsTradingDay reports whether d is neither a weekend nor a listed holiday.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	if _, ok := c.years[d.Year()]; !ok {
		c.warnUncovered(d.Year())
		return true
	}
	_, holiday := c.holidays[d.Format("2006-01-02")]
	return !holiday
}

func (c *Calendar) warnUncovered(year int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, done := c.warned[year]; done {
		return
	}
	c.warned[year] = struct{}{}
	c.logger.Warn("Holiday table does not cover year, using weekend-only adjustment",
		zap.Int("year", year))
}

// PreviousTradingDay returns the closest trading day strictly before d.
func (c *Calendar) PreviousTradingDay(d time.Time) time.Time {
	prev := dateOf(d).AddDate(0, 0, -1)
	for !c.IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// NextOccurrenceOfWeekday returns the next date with the given weekday
// strictly after from; it never returns from itself even when the weekday
// matches.
func (c *Calendar) NextOccurrenceOfWeekday(from time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(from.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return dateOf(from).AddDate(0, 0, ahead)
}

// LastWeekdayOfMonth returns the last occurrence of wd in the given month.
func (c *Calendar) LastWeekdayOfMonth(year int, month time.Month, wd time.Weekday) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for last.Weekday() != wd {
		last = last.AddDate(0, 0, -1)
	}
	return last
}

// AdjustExpiryBack rolls a nominal expiry date backward to the previous
// trading day when it lands on a holiday or weekend. Exchanges advance
// expiry to the prior session, never the next one.
func (c *Calendar) AdjustExpiryBack(d time.Time) time.Time {
	d = dateOf(d)
	if c.IsTradingDay(d) {
		return d
	}
	return c.PreviousTradingDay(d)
}
