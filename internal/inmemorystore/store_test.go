package inmemorystore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLookup(t *testing.T) {
	s := New()

	// Lookup of an attribute that doesn't exist yet
	_, ok := s.Lookup("title")
	assert.False(t, ok)

	require.NoError(t, s.Store("title", "A title"))
	v, ok := s.Lookup("title")
	require.True(t, ok)
	assert.Equal(t, "A title", v)

	// A stored nil is present
	require.NoError(t, s.Store("comment", nil))
	v, ok = s.Lookup("comment")
	assert.True(t, ok)
	assert.Nil(t, v)

	assert.Equal(t, []string{"comment", "title"}, s.Names())
	assert.Equal(t, map[string]any{"comment": nil, "title": "A title"}, s.Snapshot())
}

func TestDelete(t *testing.T) {
	var s Store
	require.NoError(t, s.Store("units", "m"))

	require.NoError(t, s.Delete("units"))
	require.NoError(t, s.Delete("units"), "deleting twice is fine")

	_, ok := s.Lookup("units")
	assert.False(t, ok)
	assert.Empty(t, s.Names())
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	numGoroutines := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("attr_%03d", i)
			_ = s.Store(name, i)
			_, _ = s.Lookup(name)
			_ = s.Names()
		}(i)
	}
	wg.Wait()

	names := s.Names()
	require.Len(t, names, numGoroutines)
	for i, name := range names {
		v, ok := s.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
