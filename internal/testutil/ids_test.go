package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs_Order(t *testing.T) {
	gen := NewSequentialIDs("conn")
	assert.Equal(t, "conn-1", gen.Next())
	assert.Equal(t, "conn-2", gen.Next())
	assert.Equal(t, int64(2), gen.Count())
}

func TestSequentialIDs_Reset(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "test-1", gen.Next())
	gen.Reset()
	assert.Equal(t, "test-1", gen.Next())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	gen := NewSequentialIDs("c")
	const n = 50

	var wg sync.WaitGroup
	seen := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- gen.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, n)
	assert.Equal(t, int64(n), gen.Count())
}
