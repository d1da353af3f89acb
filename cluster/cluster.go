package cluster

import (
	"time"

	"github.com/Green-Phys/green-utils/comm"
)

// A Cluster is a simulated set of machines hosting one rank per
// process slot. Ranks on the same machine form a shared-memory domain:
// SplitShared groups them together and shared windows allocated within
// such a group hand every member the same backing buffer.
type Cluster struct {
	loop  *EventLoop
	tr    *transport
	node  []int // rank -> machine index
	epoch time.Time
}

// New creates a cluster from a machine layout: one entry per machine,
// giving the number of ranks hosted there. New(2, 2) is two machines
// with two ranks each, world size 4.
func New(ranksPerNode ...int) *Cluster {
	c := &Cluster{
		loop:  NewEventLoop(),
		tr:    newTransport(0.01),
		epoch: time.Now(),
	}
	for nodeIdx, n := range ranksPerNode {
		for i := 0; i < n; i++ {
			c.node = append(c.node, nodeIdx)
		}
	}
	if len(c.node) == 0 {
		panic("cluster has no ranks")
	}
	return c
}

// Size returns the world size.
func (c *Cluster) Size() int {
	return len(c.node)
}

// Start launches one goroutine per rank, each receiving its view of
// the world group. Call Run afterwards to drive the simulation.
func (c *Cluster) Start(f func(world comm.Group)) {
	n := len(c.node)
	streams := make([]*Stream, n)
	globals := make([]int, n)
	for i := range streams {
		streams[i] = c.loop.Stream()
		globals[i] = i
	}
	for i := 0; i < n; i++ {
		rank := i
		c.loop.Go(func(h *Handle) {
			f(&group{
				c:       c,
				h:       h,
				rank:    rank,
				globals: globals,
				streams: streams,
			})
		})
	}
}

// Run drives the event loop until every rank goroutine has returned.
// It returns an error if the ranks deadlock, e.g. when members of a
// group disagree on the number or order of collective calls.
func (c *Cluster) Run() error {
	return c.loop.Run()
}

// MustRun is like Run but panics on deadlock.
func (c *Cluster) MustRun() {
	c.loop.MustRun()
}

// wtime returns real wall-clock seconds since the cluster was created.
// The virtual clock only orders message delivery; timing measurements
// want real durations.
func (c *Cluster) wtime() float64 {
	return time.Since(c.epoch).Seconds()
}
