// Package system provides a real clock implementation.
package system

import "time"

// Clock implements archive.Clock using time.Now. Timestamps are UTC so
// retention cutoffs compare cleanly across restarts.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
