package memo

import "time"

// Clock supplies the current time to a Value.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

// Now returns f()
func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock reads the wall clock. Elapsed time is computed from the
// monotonic reading carried by time.Now, so wall clock jumps do not expire
// or extend cached entries.
var SystemClock Clock = systemClock{}
