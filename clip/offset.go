package clip

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FormatOffset renders now-start as a YouTube t= value such as "1h23m44s".
// Sub-second precision is truncated and negative durations (clock skew) render
// as "0s".
func FormatOffset(start, now time.Time) string {
	return FormatSeconds(int64(now.Sub(start) / time.Second))
}

// FormatSeconds renders whole seconds. The hour segment is omitted when zero,
// the minute segment appears whenever minutes or hours are non-zero, and the
// seconds segment is always present.
func FormatSeconds(total int64) string {
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var b strings.Builder
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if minutes > 0 || hours > 0 {
		fmt.Fprintf(&b, "%dm", minutes)
	}
	fmt.Fprintf(&b, "%ds", seconds)
	return b.String()
}

// ShareURL builds <base>/<broadcastID>?t=<offset>.
func ShareURL(base, broadcastID, offset string) string {
	return fmt.Sprintf("%s/%s?t=%s", strings.TrimRight(base, "/"), url.PathEscape(broadcastID), offset)
}
