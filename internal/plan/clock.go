package plan

import "time"

// Clock supplies the current time. Generation, expiry checks and schedule locking all read it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to [Clock].
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
