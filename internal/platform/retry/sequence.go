package retry

import "time"

// Sequence is a bounded list of reconnect delays. Attempts past the end
// reuse the last delay, so a client under a long outage keeps retrying at
// the final cadence instead of growing without bound or giving up.
type Sequence []time.Duration

// DefaultReconnect is the delay schedule both socket clients use.
var DefaultReconnect = Sequence{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
}

// Delay returns the delay for a 1-based attempt number, clamped to the
// last entry. Attempt values below 1 get the first delay.
func (s Sequence) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s) {
		attempt = len(s)
	}
	return s[attempt-1]
}
