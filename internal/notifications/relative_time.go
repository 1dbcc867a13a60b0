package notifications

import (
	"fmt"
	"time"
)

// RelativeTime renders how long ago a notification arrived, the way the
// notification list shows it.
func RelativeTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}

	elapsed := now.Sub(ts)
	switch {
	case elapsed < time.Minute:
		return "방금 전"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d분 전", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%d시간 전", int(elapsed/time.Hour))
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%d일 전", int(elapsed/(24*time.Hour)))
	default:
		return ts.In(now.Location()).Format("2006.01.02")
	}
}
