package utils

import (
	"fmt"
	"strings"
	"time"
)

// HumanDuration formats d without zero components, e.g. "5m", "1m30s", "1h0m5s" becomes "1h5s".
// Sub-second remainders are rounded to the nearest second, anything below a second is "0s".
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}
