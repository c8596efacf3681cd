package counter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_StartsAtSeed(t *testing.T) {
	c := New(5)

	assert.Equal(t, uint64(5), c.Next())
	assert.Equal(t, uint64(6), c.Next())
}

func TestCounter_Monotone(t *testing.T) {
	c := New(1)

	var prev uint64
	for i := 0; i < 100; i++ {
		v := c.Next()
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestCounter_ConcurrentUnique(t *testing.T) {
	c := New(1)

	const n = 1000
	seen := make(chan uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			seen <- c.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint64]struct{}, n)
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, n)
}
