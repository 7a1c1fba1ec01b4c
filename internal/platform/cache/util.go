package cache

import (
	"time"

	"ashare_sync/internal/shared/marketclock"
)

// TimeUntilNextSessionClose は次の大引け（UTC+8 の15:00）までの期間を返します。
// 大引け後の同期で新しい日足が書き込まれるため、キャッシュはそれを越えて保持しません。
func TimeUntilNextSessionClose(now time.Time) time.Duration {
	now = now.In(marketclock.CST)
	next := marketclock.AtSessionClose(now)

	// 今日の大引けが既に過ぎている場合は翌日の大引けを使用
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	return next.Sub(now)
}
