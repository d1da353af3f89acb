// Package shmem provides node-shared data segments: one physical
// buffer per node, allocated through a one-sided window and mapped by
// every co-located process instead of being replicated.
//
// The logical element count is partitioned across the node-local
// processes: each rank owns roughly count/nodeSize elements, with the
// remainder handed to the lowest node ranks. The partition only
// assigns write responsibility; every rank can read (and write) the
// whole buffer between fences.
package shmem

import (
	"errors"

	"github.com/Green-Phys/green-utils/comm"
)

// An Object is a logical view that can be bound to a shared buffer:
// it reports its element count and accepts the backing slice once the
// window exists.
type Object interface {
	Size() int
	SetRef(ref []float64)
}

// LocalSize returns the partition size of nodeRank out of nodeSize for
// a buffer of count elements. The remainder goes to the lowest ranks,
// so partitions differ by at most one element and sum to count.
func LocalSize(count, nodeRank, nodeSize int) int {
	local := count / nodeSize
	if count%nodeSize > nodeRank {
		local++
	}
	return local
}

// A SharedObject owns a node-shared window and the logical view bound
// to it. Exactly one Close releases the window; the view must not be
// used afterwards.
type SharedObject[S Object] struct {
	obj       S
	size      int
	localSize int
	win       comm.Window
}

// New allocates a node-shared buffer sized to obj's element count over
// the node group and binds obj to it. The buffer contents start
// zeroed. New is collective over node.
func New[S Object](node comm.Group, obj S) (*SharedObject[S], error) {
	s := &SharedObject[S]{
		obj:       obj,
		size:      obj.Size(),
		localSize: LocalSize(obj.Size(), node.Rank(), node.Size()),
	}
	win, err := node.AllocShared(s.localSize)
	if err != nil {
		var shmErr *comm.SharedMemoryError
		if !errors.As(err, &shmErr) {
			err = &comm.SharedMemoryError{Op: "allocate shared segment", Err: err}
		}
		return nil, err
	}
	s.win = win
	obj.SetRef(win.Base()[:s.size])
	return s, nil
}

// NewSized is New for a plain shared vector of count elements.
func NewSized(node comm.Group, count int) (*SharedObject[*Slice], error) {
	return New(node, NewSlice(count))
}

// Fence is a collective synchronization point over the node group.
// Every cross-process access to the buffer must be bracketed by
// fences, and all node-local processes must fence the same number of
// times in the same relative order, or the run deadlocks.
func (s *SharedObject[S]) Fence(assert int) error {
	if s.win == nil {
		return &comm.SharedMemoryError{Op: "fence closed segment"}
	}
	return s.win.Fence(assert)
}

// LocalSize returns this rank's partition size.
func (s *SharedObject[S]) LocalSize() int { return s.localSize }

// Size returns the logical element count.
func (s *SharedObject[S]) Size() int { return s.size }

// Object returns the logical view bound to the shared buffer.
func (s *SharedObject[S]) Object() S { return s.obj }

// Win returns the underlying window, nil after Close.
func (s *SharedObject[S]) Win() comm.Window { return s.win }

// Close collectively releases the window. Closing an already-closed
// segment is a no-op, so the release happens exactly once.
func (s *SharedObject[S]) Close() error {
	if s.win == nil {
		return nil
	}
	win := s.win
	s.win = nil
	return win.Free()
}

// A Slice is the plain-vector Object: a fixed element count plus the
// bound backing data.
type Slice struct {
	size int
	data []float64
}

// NewSlice creates an unbound Slice of count elements.
func NewSlice(count int) *Slice {
	return &Slice{size: count}
}

func (s *Slice) Size() int { return s.size }

func (s *Slice) SetRef(ref []float64) { s.data = ref }

// Data returns the bound shared data, nil before binding.
func (s *Slice) Data() []float64 { return s.data }
