// Package marketclock holds the wall-clock conventions of the Shanghai/Shenzhen exchanges:
// the fixed UTC+8 zone, the 15:00 session close and the quote-server timestamp format.
package marketclock

import (
	"fmt"
	"time"
)

const (
	// WallClockLayout is the bar timestamp format emitted by the quote server.
	WallClockLayout = "2006-01-02 15:04"
	// DateLayout is the ISO date layout used for cache keys and query parameters.
	DateLayout = "2006-01-02"
	// SessionCloseHour is the local hour at which a trading day ends.
	SessionCloseHour = 15
)

// CST is the fixed UTC+8 zone all exchange wall-clock strings are interpreted in.
var CST = time.FixedZone("UTC+8", 8*60*60)

// HistoryStart is the "last stored" instant used when a series has never been synchronized.
var HistoryStart = time.Date(1998, 1, 1, 0, 0, 0, 0, CST)

// ParseWallClock converts a quote-server timestamp ("2024-01-05 15:00") into an instant in CST.
func ParseWallClock(s string) (time.Time, error) {
	t, err := time.ParseInLocation(WallClockLayout, s, CST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	return t, nil
}

// FormatWallClock renders t in the quote-server format, in CST.
func FormatWallClock(t time.Time) string {
	return t.In(CST).Format(WallClockLayout)
}

// AtSessionClose returns t's CST calendar day at 15:00:00.
func AtSessionClose(t time.Time) time.Time {
	l := t.In(CST)
	return time.Date(l.Year(), l.Month(), l.Day(), SessionCloseHour, 0, 0, 0, CST)
}

// BeforeSessionClose reports whether t falls before 15:00 on its CST day.
func BeforeSessionClose(t time.Time) bool {
	return t.In(CST).Hour() < SessionCloseHour
}
