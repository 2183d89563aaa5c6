package interval

import "time"

// DefaultGraceWindow is how long a user has to confirm presence after a booking starts.
const DefaultGraceWindow = 60 * time.Minute

// ActivationDeadline returns the earliest of grace after max(now, from) and to.
// The result always lies within [from, to] for from <= to.
func ActivationDeadline(from, to, now time.Time, grace time.Duration) time.Time {
	start := from
	if now.After(from) {
		start = now
	}
	deadline := start.Add(grace)
	if deadline.After(to) {
		return to
	}
	return deadline
}
