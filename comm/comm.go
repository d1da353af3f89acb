// Package comm defines the message-passing substrate consumed by the
// rest of the library: process groups with collective operations and
// one-sided shared-memory windows.
//
// A Group is a single process's view of a set of ranks that can
// participate together in collective operations. Every collective call
// blocks the calling process until all participating processes issue
// the matching call in the same relative order; there is no timeout or
// cancellation layer. A process that never issues the matching call
// deadlocks the whole group.
package comm

// Undefined is the color passed to Split by processes that should not
// be a member of any resulting group.
const Undefined = -1

// A Group is a set of ranks able to participate together in collective
// operations, seen from the perspective of one member process.
//
// Ranks are dense integers in [0, Size()). Rank 0 of a group acts as
// the root for operations that do not take an explicit root.
type Group interface {
	// Rank returns this process's rank within the group.
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Split partitions the group by color. Processes passing the same
	// non-negative color end up in the same new group, ordered by
	// (key, old rank). Processes passing Undefined (or any negative
	// color) are not members of any resulting group and receive a nil
	// Group. Split is collective over the whole group.
	Split(color, key int) (Group, error)

	// SplitShared partitions the group by physical shared-memory
	// domain: all co-located processes end up in the same new group,
	// ordered by (key, old rank). Every process is a member of exactly
	// one resulting group.
	SplitShared(key int) (Group, error)

	// Barrier blocks until every member of the group has entered the
	// barrier.
	Barrier() error

	// Bcast replicates root's vec into every member's vec. The slices
	// must have the same length on every rank.
	Bcast(vec []float64, root int) error

	// BcastInt is Bcast for integer vectors.
	BcastInt(vec []int, root int) error

	// BcastString replaces *s on every rank with root's value. The
	// length is transferred first, so the strings need not agree in
	// size beforehand.
	BcastString(s *string, root int) error

	// Reduce combines every member's vec with op, leaving the result
	// in root's vec. The contents of vec on non-root ranks are
	// unchanged and the result there is undefined in the MPI sense:
	// only root may rely on the outcome.
	Reduce(vec []float64, op Op, root int) error

	// AllocShared collectively allocates one shared buffer for the
	// whole group, sized to the sum of every member's localSize, and
	// returns a window into it. The buffer is laid out by rank: rank
	// 0's partition first. A barrier is performed before AllocShared
	// returns, so the window is valid on every rank afterwards.
	//
	// The group must be a shared-memory (node-local) group.
	AllocShared(localSize int) (Window, error)

	// Wtime returns wall-clock time in seconds since an arbitrary
	// point in the past.
	Wtime() float64
}

// A Window is a one-sided view into a group-shared buffer obtained
// from Group.AllocShared.
type Window interface {
	// Base returns the full shared buffer, starting at rank 0's
	// partition. Every member of the allocating group observes the
	// same backing memory.
	Base() []float64

	// Fence is a collective synchronization point. Writes issued
	// before a fence on any member are visible to all members only
	// after their matching fence. The assert argument carries
	// substrate-specific optimization hints and may be zero.
	Fence(assert int) error

	// Free collectively releases the window. The buffer returned by
	// Base must not be used afterwards.
	Free() error
}
