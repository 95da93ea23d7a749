package market

import (
	"time"
)

const locationName = "America/Argentina/Buenos_Aires"

// Buenos Aires has no DST, so the fixed offset is a safe fallback when the
// tzdata is unavailable in the runtime image.
var marketLocation = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation(locationName)
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// Location returns the market-local timezone.
func Location() *time.Location {
	return marketLocation
}

// Window describes the weekly trading window in market-local time.
type Window struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Weekdays    []time.Weekday
}

// Calendar answers whether the market is trading at a given instant.
// It is immutable after construction.
type Calendar struct {
	window   Window
	weekdays map[time.Weekday]struct{}
}

// NewCalendar builds a calendar from a trading window.
func NewCalendar(window Window) *Calendar {
	active := make(map[time.Weekday]struct{}, len(window.Weekdays))
	for _, day := range window.Weekdays {
		active[day] = struct{}{}
	}
	return &Calendar{window: window, weekdays: active}
}

// IsOpen reports whether the market trades at instant t. The instant is
// converted to market-local time; the window is inclusive at open and
// exclusive at close.
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(marketLocation)

	if _, ok := c.weekdays[local.Weekday()]; !ok {
		return false
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	open := c.window.OpenHour*60 + c.window.OpenMinute
	close := c.window.CloseHour*60 + c.window.CloseMinute

	return minuteOfDay >= open && minuteOfDay < close
}

// Window returns the configured trading window.
func (c *Calendar) Window() Window {
	return c.window
}
