// Package system provides the wall clock used to stamp era results.
package system

import "time"

// Clock implements crawler.Clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds, the precision
// published with era results.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
