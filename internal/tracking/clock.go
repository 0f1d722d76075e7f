package tracking

import "time"

// Timer is the part of *time.Timer a session needs.
type Timer interface {
	Stop() bool
}

// Clock schedules the session's poll, reconnect and label timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
