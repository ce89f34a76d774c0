// Package system stamps snapshots and crawl runs with wall-clock time.
package system

import "time"

// Clock implements crawler.Clock. Every reading is in UTC so snapshot
// creation days and run timestamps compare across hosts.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
