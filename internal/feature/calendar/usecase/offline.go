package usecase

import (
	"time"

	"ashare_sync/internal/shared/marketclock"
)

// OfflineRecentTradingDay approximates the latest completed trading session without
// contacting the quote server. Weekends are skipped; public holidays are not known.
//
//   - Saturday/Sunday: step back one day (at 15:00) and try again
//   - at or after 15:00: the same day at 15:00
//   - before 15:00: the previous day at 15:00
func OfflineRecentTradingDay(at time.Time) time.Time {
	at = at.In(marketclock.CST)
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return OfflineRecentTradingDay(marketclock.AtSessionClose(at).AddDate(0, 0, -1))
	}
	if !marketclock.BeforeSessionClose(at) {
		return marketclock.AtSessionClose(at)
	}
	return marketclock.AtSessionClose(at.AddDate(0, 0, -1))
}
