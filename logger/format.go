package logger

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

// FormatCount renders a count for operator-facing log lines, e.g.
// "12,483 entries" instead of "12483 entries".
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatDuration renders a duration for operator-facing log lines using
// whole-unit precision (e.g. "340 milliseconds 219 microseconds" rather than
// "340.219041ms").
func FormatDuration(d time.Duration) string {
	return durafmt.Parse(d).String()
}
