package cluster

import (
	"fmt"

	"github.com/Green-Phys/green-utils/comm"
	"github.com/google/uuid"
)

// AllocShared collectively allocates one buffer for the whole group.
// Rank 0 gathers every member's local size, allocates the sum, and
// hands the same backing slice to every member; the ranks genuinely
// share memory, as co-located processes do through a real one-sided
// window. A barrier runs before returning so that the window is valid
// everywhere.
func (g *group) AllocShared(localSize int) (comm.Window, error) {
	if localSize < 0 {
		return nil, &comm.SharedMemoryError{
			Op:  "allocate shared window",
			Err: fmt.Errorf("negative local size %d", localSize),
		}
	}

	var id string
	var base []float64
	if g.rank == 0 {
		sizes := make([]int, len(g.streams))
		sizes[0] = localSize
		for i := 1; i < len(g.streams); i++ {
			m := g.recv().(allocMsg)
			sizes[m.from] = m.local
		}
		total := 0
		for _, s := range sizes {
			total += s
		}
		id = uuid.NewString()
		base = make([]float64, total)
		for r := 1; r < len(g.streams); r++ {
			g.send(r, winMsg{id: id, base: base})
		}
	} else {
		g.send(0, allocMsg{from: g.rank, local: localSize})
		m := g.recv().(winMsg)
		id, base = m.id, m.base
	}

	w := &window{g: g, id: id, base: base}
	if err := g.Barrier(); err != nil {
		return nil, &comm.SharedMemoryError{Op: "synchronize shared window", Err: err}
	}
	return w, nil
}

// window is one rank's handle on a group-shared buffer. The handle
// state is per rank; the buffer is shared.
type window struct {
	g     *group
	id    string
	base  []float64
	freed bool
}

func (w *window) Base() []float64 { return w.base }

// Fence is a synchronization point over the allocating group. The
// barrier's channel communication establishes the visibility boundary
// for writes on either side.
func (w *window) Fence(assert int) error {
	if w.freed {
		return &comm.SharedMemoryError{Op: fmt.Sprintf("fence window %s", w.id), Err: errFreed}
	}
	return w.g.Barrier()
}

// Free collectively releases the window. Freeing twice is an error.
func (w *window) Free() error {
	if w.freed {
		return &comm.SharedMemoryError{Op: fmt.Sprintf("free window %s", w.id), Err: errFreed}
	}
	w.freed = true
	w.base = nil
	return w.g.Barrier()
}

var errFreed = fmt.Errorf("window already freed")
