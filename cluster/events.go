// Package cluster provides an in-process implementation of the comm
// substrate: a set of simulated machines, each hosting one or more
// ranks, driven by a virtual-time event loop. Co-located ranks share
// the process's memory, so one-sided shared windows hand out real
// shared buffers.
//
// The loop only advances virtual time when every rank goroutine is
// blocked polling for a message, which also gives cheap deadlock
// detection: a run in which every rank waits forever fails with an
// error instead of hanging.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/unixpickle/essentials"
)

// A Stream is a uni-directional channel of messages delivered through
// an EventLoop. A Stream may only be used with the loop that created
// it.
type Stream struct {
	loop    *EventLoop
	pending []any
}

// An Event is a message received on some Stream.
type Event struct {
	Message any
	Stream  *Stream
}

// A Timer is a single scheduled delivery in the virtual future.
type Timer struct {
	time  float64
	event *Event
}

// Time returns the virtual time at which the timer fires.
func (t *Timer) Time() float64 {
	return t.time
}

// A Handle is one goroutine's access point to an EventLoop. Handles
// must not be shared between goroutines.
type Handle struct {
	*EventLoop

	// Set while the goroutine is polling, empty otherwise.
	pollStreams []*Stream
	pollChan    chan<- *Event
}

// Poll blocks until the next event arrives on any of the streams.
func (h *Handle) Poll(streams ...*Stream) *Event {
	ch := make(chan *Event, 1)
	h.modifyHandles(func() {
		if h.pollStreams != nil {
			panic("Handle is shared between goroutines")
		}
		for _, stream := range streams {
			if len(stream.pending) > 0 {
				msg := stream.pending[0]
				essentials.OrderedDelete(&stream.pending, 0)
				ch <- &Event{Message: msg, Stream: stream}
				return
			}
		}
		h.pollStreams = streams
		h.pollChan = ch
	})
	return <-ch
}

// Schedule arranges for msg to arrive on stream after delay units of
// virtual time.
func (h *Handle) Schedule(stream *Stream, msg any, delay float64) *Timer {
	if stream.loop != h.EventLoop {
		panic("Stream does not belong to this EventLoop")
	}
	var timer *Timer
	h.modify(func() {
		timer = &Timer{
			time:  h.time + delay,
			event: &Event{Message: msg, Stream: stream},
		}
		if math.IsInf(timer.time, 0) || math.IsNaN(timer.time) {
			panic(fmt.Sprintf("invalid deadline: %f", timer.time))
		}
		h.timers = append(h.timers, timer)
	})
	return timer
}

// Sleep blocks until delay units of virtual time have elapsed.
func (h *Handle) Sleep(delay float64) {
	stream := h.Stream()
	h.Schedule(stream, nil, delay)
	h.Poll(stream)
}

// An EventLoop schedules message delivery between the goroutines of a
// simulated cluster. All participating goroutines must be started with
// Go. The loop steps virtual time forward only when every goroutine is
// polling, so computation between polls happens in real time without
// affecting the virtual clock.
type EventLoop struct {
	lock    sync.Mutex
	timers  []*Timer
	handles []*Handle

	time float64

	running  bool
	notifyCh chan struct{}
}

// NewEventLoop creates an event loop with its clock at 0.
func NewEventLoop() *EventLoop {
	return &EventLoop{notifyCh: make(chan struct{}, 1)}
}

// Stream creates a new Stream on the loop.
func (e *EventLoop) Stream() *Stream {
	return &Stream{loop: e}
}

// Go runs f in its own goroutine with a fresh Handle.
func (e *EventLoop) Go(f func(h *Handle)) {
	h := &Handle{EventLoop: e}
	e.lock.Lock()
	e.handles = append(e.handles, h)
	e.lock.Unlock()
	go func() {
		f(h)
		e.modifyHandles(func() {
			for i, handle := range e.handles {
				if handle == h {
					essentials.UnorderedDelete(&e.handles, i)
					return
				}
			}
			panic("cannot free handle that does not exist")
		})
	}()
}

// Run drives the loop until every handle has finished. It returns an
// error if the goroutines deadlock: every handle polling with no timer
// left to fire.
//
// Run must not be called from more than one goroutine at once.
func (e *EventLoop) Run() error {
	e.lock.Lock()
	if e.running {
		e.lock.Unlock()
		panic("EventLoop is already running")
	}
	e.running = true
	e.lock.Unlock()

	defer func() {
		e.lock.Lock()
		e.running = false
		e.lock.Unlock()
	}()

	for range e.notifyCh {
		if shouldContinue, err := e.step(); !shouldContinue {
			return err
		}
	}

	panic("unreachable")
}

// MustRun is like Run but panics on deadlock.
func (e *EventLoop) MustRun() {
	if err := e.Run(); err != nil {
		panic(err)
	}
}

// Time returns the current virtual time.
func (e *EventLoop) Time() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.time
}

// modify runs f under the loop lock. It assumes f cannot change which
// handles are runnable; use modifyHandles otherwise.
func (e *EventLoop) modify(f func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	f()
}

// modifyHandles is like modify but wakes the loop afterwards, since f
// may have changed the set of polling handles.
func (e *EventLoop) modifyHandles(f func()) {
	e.lock.Lock()
	defer func() {
		e.lock.Unlock()
		select {
		case e.notifyCh <- struct{}{}:
		default:
		}
	}()
	f()
}

// step delivers the next message, if any. The first return value is
// false when the loop should stop; the error then reports a deadlock.
func (e *EventLoop) step() (bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(e.handles) == 0 {
		return false, nil
	}

	for _, h := range e.handles {
		if len(h.pollStreams) == 0 {
			// A goroutine is computing in real time; wait for it to
			// poll again before advancing the clock.
			return true, nil
		}
	}

	for len(e.timers) > 0 {
		// Shuffle so that timers with equal deadlines do not fire in a
		// deterministic order.
		indices := rand.Perm(len(e.timers))

		minTimerIdx := indices[0]
		for _, i := range indices[1:] {
			if e.timers[i].time < e.timers[minTimerIdx].time {
				minTimerIdx = i
			}
		}
		timer := e.timers[minTimerIdx]

		essentials.UnorderedDelete(&e.timers, minTimerIdx)
		e.time = math.Max(e.time, timer.time)
		if e.deliver(timer.event) {
			return true, nil
		}
	}

	return false, errors.New("deadlock: all ranks are polling")
}

func (e *EventLoop) deliver(event *Event) bool {
	// Shuffle so that competing receivers are picked in a random
	// order.
	indices := rand.Perm(len(e.handles))
	for _, i := range indices {
		h := e.handles[i]
		for _, stream := range h.pollStreams {
			if stream == event.Stream {
				h.pollChan <- event
				h.pollChan = nil
				h.pollStreams = nil
				return true
			}
		}
	}
	event.Stream.pending = append(event.Stream.pending, event.Message)
	return false
}
