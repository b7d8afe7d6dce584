package usecase_test

import (
	"testing"
	"time"

	"github.com/arjunm/nse_option_engine/internal/usecase"
)

var testHolidays = []string{
	"2025-01-26", "2025-03-14", "2025-03-31", "2025-04-10", "2025-04-14",
	"2025-04-18", "2025-05-01", "2025-08-15", "2025-08-27", "2025-10-02",
	"2025-10-21", "2025-11-01", "2025-11-05", "2025-12-25",
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	cal := usecase.NewCalendar(testHolidays, nil)

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"Regular weekday", day(2025, 12, 8), true},
		{"Saturday", day(2025, 12, 6), false},
		{"Sunday", day(2025, 12, 7), false},
		{"Christmas holiday", day(2025, 12, 25), false},
		{"Diwali holiday", day(2025, 10, 21), false},
		{"Uncovered year falls back to weekday check", day(2030, 12, 25), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsTradingDay(tt.date); got != tt.want {
				t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestPreviousTradingDay(t *testing.T) {
	cal := usecase.NewCalendar(testHolidays, nil)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"Plain weekday", day(2025, 12, 10), day(2025, 12, 9)},
		{"Skips weekend", day(2025, 12, 8), day(2025, 12, 5)},
		{"Skips holiday", day(2025, 12, 26), day(2025, 12, 24)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.PreviousTradingDay(tt.from); !got.Equal(tt.want) {
				t.Errorf("PreviousTradingDay(%s) = %s, want %s",
					tt.from.Format("2006-01-02"), got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestNextOccurrenceOfWeekday(t *testing.T) {
	cal := usecase.NewCalendar(testHolidays, nil)

	// Monday -> next Tuesday is tomorrow.
	got := cal.NextOccurrenceOfWeekday(day(2025, 12, 8), time.Tuesday)
	if !got.Equal(day(2025, 12, 9)) {
		t.Errorf("got %s, want 2025-12-09", got.Format("2006-01-02"))
	}

	// From a Tuesday the next Tuesday is a full week out, never the same day.
	got = cal.NextOccurrenceOfWeekday(day(2025, 12, 9), time.Tuesday)
	if !got.Equal(day(2025, 12, 16)) {
		t.Errorf("got %s, want 2025-12-16", got.Format("2006-01-02"))
	}
}

func TestLastWeekdayOfMonth(t *testing.T) {
	cal := usecase.NewCalendar(testHolidays, nil)

	tests := []struct {
		year  int
		month time.Month
		wd    time.Weekday
		want  time.Time
	}{
		{2025, time.December, time.Tuesday, day(2025, 12, 30)},
		{2025, time.December, time.Thursday, day(2025, 12, 25)},
		{2026, time.January, time.Tuesday, day(2026, 1, 27)},
	}

	for _, tt := range tests {
		if got := cal.LastWeekdayOfMonth(tt.year, tt.month, tt.wd); !got.Equal(tt.want) {
			t.Errorf("LastWeekdayOfMonth(%d, %s, %s) = %s, want %s",
				tt.year, tt.month, tt.wd, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
		}
	}
}

func TestAdjustExpiryBack(t *testing.T) {
	cal := usecase.NewCalendar(testHolidays, nil)

	// Christmas 2025 is a Thursday holiday: the contract expires Wednesday.
	got := cal.AdjustExpiryBack(day(2025, 12, 25))
	if !got.Equal(day(2025, 12, 24)) {
		t.Errorf("got %s, want 2025-12-24", got.Format("2006-01-02"))
	}

	// A trading day is returned unchanged.
	got = cal.AdjustExpiryBack(day(2025, 12, 9))
	if !got.Equal(day(2025, 12, 9)) {
		t.Errorf("got %s, want 2025-12-09", got.Format("2006-01-02"))
	}
}
