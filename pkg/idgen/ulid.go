// Package idgen generates the opaque, time-sortable identifiers used for
// every persisted entity.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// mu guards entropy since ulid.Monotonic is not safe for concurrent use.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new 26-character lexicographically-sortable ULID string,
// monotonic within this process for identical timestamps.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Time extracts the embedded creation time from an identifier produced by New.
// Returns the zero Time if id is not a well-formed ULID.
func Time(id string) time.Time {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(parsed.Time())
}
