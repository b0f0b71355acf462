// Package reconnect provides the backoff schedule applied between
// engine restarts: quick retries first so a one-off crash barely
// registers, stretching out when the engine keeps dying.
package reconnect

import "time"

// Ceiling is the delay applied once the schedule is exhausted, i.e.
// when the engine has been failing for a while.
const Ceiling = 30 * time.Second

// Schedule defines the backoff durations for successive engine
// restarts. A session that reaches ready resets the attempt counter.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff before restart attempt (zero-based).
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return Ceiling
}
