// Package system provides the wall clock behind first_seen_at, snapshot
// timestamps and retry deadlines.
package system

import (
	"time"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

var _ radar.Clock = Clock{}

// Clock implements radar.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
