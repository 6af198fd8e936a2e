// Package ratelimit provides a deterministic token bucket used to bound the
// rate of inbound signaling messages per connection.
package ratelimit

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
