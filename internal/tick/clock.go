package tick

import "time"

// Clock schedules wall-clock callbacks. Callbacks run on a clock-owned goroutine and
// must only hand work to a Loop, never touch loop-owned state directly.
type Clock interface {
	Now() time.Time
	AfterFunc(time.Duration, func()) Stopper
}

// Stopper cancels a scheduled callback. Stop reports whether the call prevented it.
type Stopper interface {
	Stop() bool
}

// SystemClock is the runtime Clock backed by the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}
