package ackhandler

import "time"

// mockClock is a manually advanced utils.Clock, mirroring the pattern
// used throughout this module's tests: a time.Time wrapper advanced
// explicitly by the test rather than reading the wall clock.
type mockClock time.Time

func (c *mockClock) Now() time.Time {
	return time.Time(*c)
}

func (c *mockClock) Advance(d time.Duration) {
	*c = mockClock(time.Time(*c).Add(d))
}
