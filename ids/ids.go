// Package ids provides message and correlation id generators.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// UUID returns a random UUID string
func UUID() string {
	return uuid.New().String()
}

// ULID returns a time-sortable ULID encoded as a 26-character string.
// Ids created within the same millisecond are strictly increasing.
func ULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// Prefixed wraps gen so every id starts with prefix and a dash
func Prefixed(prefix string, gen func() string) func() string {
	return func() string {
		return prefix + "-" + gen()
	}
}
