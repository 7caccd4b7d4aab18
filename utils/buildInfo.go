package utils

import (
	"fmt"
	"time"
)

// set via -ldflags "-X github.com/hannesrauhe/bttimeout/utils.Version=..."
var (
	Version        = "dev"
	CommitHash     = "n/a"
	BuildTime      = "n/a"
	StartTimestamp = time.Now()
)

// BuildFullVersion is printed by -version and logged at startup
func BuildFullVersion() string {
	return fmt.Sprintf("bttimeoutd %s-%s (%s)", Version, CommitHash, BuildTime)
}

// Uptime is the time since the process started, rounded to seconds
func Uptime() time.Duration {
	return time.Since(StartTimestamp).Round(time.Second)
}
