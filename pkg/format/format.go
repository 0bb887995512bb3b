// Package format renders byte counts, durations and progress bars for status lines.
package format

import (
	"fmt"
	"math"
	"strings"
)

var units = []string{"B", "KB", "MB", "GB", "TB"}

// Bytes renders n in 1024-based units. The B tier has no decimals, the others two.
func Bytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}

	value := float64(n)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}

	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}

// ETA renders a remaining-time estimate as "Xh Ym", "Xm Ys" or "Xs".
// Negative, NaN or infinite input renders as "calculating...".
func ETA(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "calculating..."
	}

	total := int64(seconds)
	switch {
	case total < 60:
		return fmt.Sprintf("%ds", total)
	case total < 3600:
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	default:
		return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
	}
}

const (
	barWidth  = 20
	barFilled = "█"
	barEmpty  = "░"
)

// Bar renders a 20-cell block progress bar for pct in [0, 100].
func Bar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / (100 / barWidth))
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, barWidth-filled)
}
