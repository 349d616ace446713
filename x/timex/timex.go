package timex

import "time"

// NowNs returns Unix nanoseconds.
func NowNs() int64 { return time.Now().UnixNano() }

// ResetTimer stops t, drops any pending fire and re-arms it for d.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

// DrainTimer empties t.C without blocking.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
