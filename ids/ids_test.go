package ids

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID(t *testing.T) {
	id := UUID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, UUID())
}

func TestULIDOrdering(t *testing.T) {
	const total = 100
	generated := make([]string, total)
	for i := range generated {
		generated[i] = ULID()
	}

	for i, id := range generated {
		assert.Len(t, id, 26)
		_, err := ulid.Parse(id)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, generated[i-1], id)
		}
	}
}

func TestULIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := ULID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("orders", ULID)
	id := gen()
	assert.True(t, strings.HasPrefix(id, "orders-"))
	assert.Len(t, id, len("orders-")+26)
}
