package chat

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// FormatElapsed renders d in days, hours, minutes and seconds, starting at
// the largest non-zero unit: "5 seconds", "1 minutes, 5 seconds",
// "1 days, 1 hours, 0 minutes, 0 seconds". Fractions of a second are dropped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%d days, %d hours, %d minutes, %d seconds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%d hours, %d minutes, %d seconds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d minutes, %d seconds", minutes, seconds)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}
