package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestLogStoreAppendAndRecent(t *testing.T) {
	store := NewLogStore(3, logger.New(logger.LevelOff, nil))

	_, ok := store.Last()
	assert.False(t, ok)
	assert.Empty(t, store.Recent(5))

	store.Append(Entry{Text: "Welcome!"})
	store.Append(Entry{Text: "Command 'Takeoff' recognized."})

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"Welcome!", "Command 'Takeoff' recognized."}, texts(store.Recent(0)))
	assert.Equal(t, []string{"Command 'Takeoff' recognized."}, texts(store.Recent(1)))

	last, ok := store.Last()
	require.True(t, ok)
	assert.False(t, last.At.IsZero())
}

func TestLogStoreEvictsOldest(t *testing.T) {
	store := NewLogStore(3, logger.New(logger.LevelOff, nil))
	for i := 1; i <= 5; i++ {
		store.Append(Entry{Text: fmt.Sprintf("line %d", i)})
	}

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, texts(store.Recent(0)))
	assert.Equal(t, []string{"line 4", "line 5"}, texts(store.Recent(2)))
}

func TestLogStoreDefaultCapacity(t *testing.T) {
	store := NewLogStore(0, logger.New(logger.LevelOff, nil))
	for i := 0; i < DefaultCapacity+10; i++ {
		store.Append(Entry{Text: "x"})
	}
	assert.Equal(t, DefaultCapacity, store.Len())
}

func TestLogStoreConcurrentAccess(t *testing.T) {
	store := NewLogStore(10, logger.New(logger.LevelOff, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Append(Entry{Text: fmt.Sprintf("%d-%d", n, j)})
				_ = store.Recent(3)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, store.Len())
}
