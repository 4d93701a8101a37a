package subs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPoolNeverReturnsPendingID(t *testing.T) {
	pool := newIDPool(1001, 1010)
	pending := make(map[uint64]pendingCall)

	// Interleave acquires and releases; the pool must never hand out an id
	// still present in pending.
	seen := make(map[uint64]int)
	for i := 0; i < 50; i++ {
		id, err := pool.acquire(pending)
		require.NoError(t, err)
		_, inFlight := pending[id]
		require.False(t, inFlight, "id %d already in flight", id)
		assert.GreaterOrEqual(t, id, uint64(1001))
		assert.LessOrEqual(t, id, uint64(1010))
		pending[id] = pendingCall{}
		seen[id]++

		// Release every other id to force wrap-around over a partially
		// occupied range.
		if i%2 == 0 {
			delete(pending, id)
		}
	}
}

func TestIDPoolExhaustion(t *testing.T) {
	pool := newIDPool(1, 3)
	pending := make(map[uint64]pendingCall)

	for i := 0; i < 3; i++ {
		id, err := pool.acquire(pending)
		require.NoError(t, err)
		pending[id] = pendingCall{}
	}

	_, err := pool.acquire(pending)
	assert.ErrorIs(t, err, ErrIDRangeExhausted)

	// Freeing one slot makes exactly that id available again.
	delete(pending, 2)
	id, err := pool.acquire(pending)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestIDPoolWrapsCircularly(t *testing.T) {
	pool := newIDPool(5, 7)
	pending := make(map[uint64]pendingCall)

	var order []uint64
	for i := 0; i < 6; i++ {
		id, err := pool.acquire(pending)
		require.NoError(t, err)
		order = append(order, id)
	}
	assert.Equal(t, []uint64{5, 6, 7, 5, 6, 7}, order)
}
