// Package timing measures named, nestable execution regions per
// process and reports them either locally or reduced across a process
// group.
//
// Events form a forest: starting an event while another is active
// registers it as a child of the active one. The event tree is stored
// as an arena of nodes addressed by index, with children owned by
// their parent's name table and parents held as plain indices.
package timing

import (
	"fmt"
	"time"
)

// WrongEventState reports starting an event that is already active.
// Re-entrant starts are a programmer error; the check only runs in
// debug mode (see WithDebug), release-mode profilers silently allow it
// and let the last start win.
type WrongEventState struct {
	Event string
}

func (e *WrongEventState) Error() string {
	return fmt.Sprintf("timing: event %q is already active", e.Event)
}

var epoch = time.Now()

func wallclock() float64 {
	return time.Since(epoch).Seconds()
}

type eventNode struct {
	name       string
	start      float64
	duration   float64
	active     bool
	accumulate bool

	parent   int // -1 at a root
	children map[string]int
	order    []int // child indices in insertion order
}

// A Timing is a per-process profiler. It is not safe for concurrent
// use from multiple goroutines of the same process.
type Timing struct {
	name  string
	debug bool
	now   func() float64

	nodes   []eventNode
	roots   []int // root indices in insertion order
	rootIdx map[string]int
	current int // index of the active event, -1 when idle
}

// An Option configures a Timing.
type Option func(*Timing)

// WithDebug makes Start panic with *WrongEventState when the target
// event is already active.
func WithDebug() Option {
	return func(t *Timing) { t.debug = true }
}

// WithClock replaces the wall-clock time source, which must return
// seconds since some fixed point in the past.
func WithClock(now func() float64) Option {
	return func(t *Timing) { t.now = now }
}

// New creates a profiler. The name, if non-empty, prefixes report
// headers.
func New(name string, opts ...Option) *Timing {
	t := &Timing{
		name:    name,
		now:     wallclock,
		rootIdx: map[string]int{},
		current: -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Timing) newNode(name string, parent int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, eventNode{
		name:     name,
		parent:   parent,
		children: map[string]int{},
	})
	return idx
}

func (t *Timing) ensureRoot(name string) int {
	if idx, ok := t.rootIdx[name]; ok {
		return idx
	}
	idx := t.newNode(name, -1)
	t.rootIdx[name] = idx
	t.roots = append(t.roots, idx)
	return idx
}

func (t *Timing) ensureChild(parent int, name string) int {
	if idx, ok := t.nodes[parent].children[name]; ok {
		return idx
	}
	idx := t.newNode(name, parent)
	t.nodes[parent].children[name] = idx
	t.nodes[parent].order = append(t.nodes[parent].order, idx)
	return idx
}

// Add registers a root-level event with zero duration if it is not
// present yet. It never starts anything; added events show up in
// reports even if never started.
func (t *Timing) Add(name string) {
	t.ensureRoot(name)
}

// Start begins measuring name. If an event is currently active, name
// becomes (or is reused as) its child; otherwise it is a root event.
// The event's duration is overwritten by the next End.
func (t *Timing) Start(name string) {
	t.start(name, false)
}

// StartAccumulate is Start with accumulation: the next End adds the
// elapsed time to the event's duration instead of overwriting it.
func (t *Timing) StartAccumulate(name string) {
	t.start(name, true)
}

func (t *Timing) start(name string, accumulate bool) {
	if t.debug {
		if idx, ok := t.rootIdx[name]; ok && t.nodes[idx].active {
			panic(&WrongEventState{Event: name})
		}
		if t.current >= 0 {
			if idx, ok := t.nodes[t.current].children[name]; ok && t.nodes[idx].active {
				panic(&WrongEventState{Event: name})
			}
		}
	}
	var idx int
	if t.current >= 0 {
		idx = t.ensureChild(t.current, name)
	} else {
		idx = t.ensureRoot(name)
	}
	n := &t.nodes[idx]
	n.accumulate = accumulate
	n.active = true
	n.start = t.now()
	t.current = idx
}

// End finishes the active event, updates its duration and repositions
// the profiler at its parent (none if it was a root). End without an
// active event is a no-op.
func (t *Timing) End() {
	if t.current < 0 {
		return
	}
	n := &t.nodes[t.current]
	elapsed := t.now() - n.start
	if n.accumulate {
		n.duration += elapsed
	} else {
		n.duration = elapsed
	}
	n.active = false
	t.current = n.parent
}

// Reset zeroes the duration and active flag of every direct child of
// the active event. It is a no-op when nothing is active.
func (t *Timing) Reset() {
	if t.current < 0 {
		return
	}
	for _, idx := range t.nodes[t.current].order {
		t.nodes[idx].duration = 0
		t.nodes[idx].active = false
	}
}

// Event returns the handle for name, creating the event if absent:
// existing root events are found first, otherwise the event lives
// under the active event if there is one, else at the root.
func (t *Timing) Event(name string) Event {
	if idx, ok := t.rootIdx[name]; ok {
		return Event{t: t, idx: idx}
	}
	if t.current >= 0 {
		return Event{t: t, idx: t.ensureChild(t.current, name)}
	}
	return Event{t: t, idx: t.ensureRoot(name)}
}

// An Event is a handle on one node of the profiler's forest. Handles
// are comparable: two handles are equal exactly when they address the
// same node of the same profiler.
type Event struct {
	t   *Timing
	idx int
}

// Name returns the event's name.
func (e Event) Name() string { return e.t.nodes[e.idx].name }

// Duration returns the accumulated or last-measured duration in
// seconds.
func (e Event) Duration() float64 { return e.t.nodes[e.idx].duration }

// Active reports whether the event is between its Start and matching
// End.
func (e Event) Active() bool { return e.t.nodes[e.idx].active }

// Accumulate reports whether End adds to the duration instead of
// overwriting it.
func (e Event) Accumulate() bool { return e.t.nodes[e.idx].accumulate }

// Parent returns the enclosing event, or ok=false at a root.
func (e Event) Parent() (parent Event, ok bool) {
	p := e.t.nodes[e.idx].parent
	if p < 0 {
		return Event{}, false
	}
	return Event{t: e.t, idx: p}, true
}

// Children returns the direct children in insertion order.
func (e Event) Children() []Event {
	order := e.t.nodes[e.idx].order
	children := make([]Event, len(order))
	for i, idx := range order {
		children[i] = Event{t: e.t, idx: idx}
	}
	return children
}
