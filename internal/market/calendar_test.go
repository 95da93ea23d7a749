package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func weekdayWindow() Window {
	return Window{
		OpenHour:    10,
		OpenMinute:  30,
		CloseHour:   16,
		CloseMinute: 30,
		Weekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

func localTime(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	// 2026-02-16 is a Monday.
	return time.Date(2026, 2, day, hour, minute, 0, 0, Location())
}

func TestIsOpenWeekdayInsideWindow(t *testing.T) {
	cal := NewCalendar(weekdayWindow())
	assert.True(t, cal.IsOpen(localTime(t, 16, 12, 0)))
}

func TestIsOpenSaturdayClosed(t *testing.T) {
	cal := NewCalendar(weekdayWindow())
	// 2026-02-21 is a Saturday.
	assert.False(t, cal.IsOpen(localTime(t, 21, 12, 0)))
}

func TestIsOpenBoundaries(t *testing.T) {
	cal := NewCalendar(weekdayWindow())

	assert.False(t, cal.IsOpen(localTime(t, 16, 10, 29)), "one minute before open")
	assert.True(t, cal.IsOpen(localTime(t, 16, 10, 30)), "open boundary is inclusive")
	assert.False(t, cal.IsOpen(localTime(t, 16, 16, 30)), "close boundary is exclusive")
	assert.True(t, cal.IsOpen(localTime(t, 16, 16, 29)))
}

func TestIsOpenConvertsForeignTimezone(t *testing.T) {
	cal := NewCalendar(weekdayWindow())

	// Monday 14:00 UTC == 11:00 Buenos Aires: open.
	utc := time.Date(2026, 2, 16, 14, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsOpen(utc))

	// Monday 12:00 UTC == 09:00 Buenos Aires: still closed.
	early := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsOpen(early))
}
