package cluster

import (
	"math/rand"
	"sync"
)

// transport delivers messages between ranks with a random latency per
// message while keeping delivery to any one destination in send order.
// The chaining per destination means a message sent later (in virtual
// time) can never overtake an earlier one to the same rank, which is
// what the collective protocols in this package rely on.
type transport struct {
	maxLatency float64

	lock   sync.Mutex
	nextAt map[*Stream]float64
}

func newTransport(maxLatency float64) *transport {
	return &transport{
		maxLatency: maxLatency,
		nextAt:     map[*Stream]float64{},
	}
}

// send schedules msg for delivery on dst.
func (t *transport) send(h *Handle, dst *Stream, msg any) {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := h.Time()
	deliverAt := now + rand.Float64()*t.maxLatency
	if prev, ok := t.nextAt[dst]; ok && deliverAt <= prev {
		// Queue strictly behind the previous delivery so that equal
		// deadlines cannot be reordered by the loop's tie shuffling.
		deliverAt = prev + 1e-9
	}
	t.nextAt[dst] = deliverAt
	h.Schedule(dst, msg, deliverAt-now)
}
