package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Readings())
	assert.True(t, clock.Now().Equal(Epoch))
}

func TestDeterministicClock_AdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock().WithStep(time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Now())
	assert.Equal(t, int64(3), clock.Readings())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Now()
	clock.Now()
	clock.Reset()

	assert.Equal(t, int64(0), clock.Readings())
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[time.Time]bool)
	for _, readings := range results {
		for j, r := range readings {
			require.False(t, seen[r], "duplicate reading %v", r)
			seen[r] = true
			if j > 0 {
				assert.True(t, r.After(readings[j-1]), "readings within a goroutine must increase")
			}
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
