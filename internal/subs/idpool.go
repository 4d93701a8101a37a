package subs

import "errors"

// ErrIDRangeExhausted means every id in the pool's range is still awaiting
// a response. Ranges are sized generously relative to the expected watch
// count, so hitting this indicates a stuck connection.
var ErrIDRangeExhausted = errors.New("request id range exhausted")

// idPool hands out JSON-RPC request ids from a fixed inclusive range,
// wrapping circularly and skipping ids that are still pending a response.
// Watch and unwatch requests use disjoint pools so no two in-flight
// requests can ever share an id. Callers hold the manager lock.
type idPool struct {
	first, last uint64
	next        uint64
}

func newIDPool(first, last uint64) *idPool {
	return &idPool{first: first, last: last, next: first}
}

func (p *idPool) acquire(pending map[uint64]pendingCall) (uint64, error) {
	size := p.last - p.first + 1
	for i := uint64(0); i < size; i++ {
		id := p.next
		p.next++
		if p.next > p.last {
			p.next = p.first
		}
		if _, inFlight := pending[id]; !inFlight {
			return id, nil
		}
	}
	return 0, ErrIDRangeExhausted
}
