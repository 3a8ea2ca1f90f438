// Package editor implements the per-session document editing engine: the
// live mirror of the remote document, the typing guard that keeps remote
// snapshots from clobbering in-progress keystrokes, and the debounced
// writers that turn keystroke bursts into durable saves.
package editor

import "time"

// Clock abstracts timer scheduling so debounce and idle windows are
// testable without real sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the subset of time.Timer the engine needs.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}
