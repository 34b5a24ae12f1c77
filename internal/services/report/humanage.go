package report

import (
	"fmt"
	"time"
)

// humanAge renders how long ago ts was relative to now, e.g. "just now",
// "42s ago", "5 min ago", "3h ago", "2d 4h ago".
func humanAge(ts, now time.Time) string {
	seconds := int(now.Sub(ts).Seconds())
	if seconds < 0 {
		return "in the future"
	}
	if seconds < 10 {
		return "just now"
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds ago", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%d min ago", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}

	days := hours / 24
	remHours := hours % 24
	return fmt.Sprintf("%dd %dh ago", days, remHours)
}
