package timing

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Green-Phys/green-utils/comm"
)

const reportFooter = "====================="

// Print writes a depth-first dump of every root event and its
// descendants, with durations in seconds at fixed precision.
func (t *Timing) Print(w io.Writer) {
	if t.name != "" {
		fmt.Fprintf(w, "%s timing: \n", t.name)
	} else {
		fmt.Fprint(w, "timing: \n")
	}
	for _, idx := range t.roots {
		t.printEvent(w, "", idx)
	}
	fmt.Fprintln(w, reportFooter)
}

func (t *Timing) printEvent(w io.Writer, prefix string, idx int) {
	n := &t.nodes[idx]
	fmt.Fprintf(w, "%-45s%.7f s.\n", fmt.Sprintf("%sEvent '%s' took ", prefix, n.name), n.duration)
	for _, child := range n.order {
		t.printEvent(w, prefix+"  ", child)
	}
}

// PrintGroup writes a single report reduced across g: per event the
// max, min and average duration over the group. Only rank 0 of g (the
// authority) writes anything; the other ranks participate in the
// collectives and write nothing.
//
// Processes may have taken different paths and hold different trees.
// The authority's tree shape is canonical: its entries are synchronized
// level by level (count first, then each name), and a process lacking a
// branch creates a zero-duration stand-in so the reductions line up.
// Branches the authority lacks do not appear in the report.
//
// PrintGroup is collective over g. On any substrate failure no output
// is produced at all.
func (t *Timing) PrintGroup(w io.Writer, g comm.Group) error {
	rank, size := g.Rank(), g.Size()
	if err := t.syncShape(g, -1); err != nil {
		return err
	}

	var buf bytes.Buffer
	if rank == 0 {
		title := "timing: "
		if t.name != "" {
			title = t.name + " timing: "
		}
		fmt.Fprintf(&buf, "%-43s%13s%13s%13s\n", title, "max", "min", "avg")
	}

	count := []int{len(t.roots)}
	if err := g.BcastInt(count, 0); err != nil {
		return &comm.CommunicatorError{Op: "broadcast event count", Err: err}
	}
	for i := 0; i < count[0]; i++ {
		var name string
		if rank == 0 {
			name = t.nodes[t.roots[i]].name
		}
		if err := g.BcastString(&name, 0); err != nil {
			return &comm.CommunicatorError{Op: "broadcast event name", Err: err}
		}
		if err := t.reduceEvent(&buf, g, rank, size, "", t.ensureRoot(name)); err != nil {
			return err
		}
	}

	if rank == 0 {
		fmt.Fprintln(&buf, reportFooter)
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// reduceEvent reduces one synchronized node's duration over the group
// and recurses into its children, synchronizing their names first.
func (t *Timing) reduceEvent(buf *bytes.Buffer, g comm.Group, rank, size int, prefix string, idx int) error {
	d := t.nodes[idx].duration
	maxv := []float64{d}
	minv := []float64{d}
	sumv := []float64{d}
	if err := g.Reduce(maxv, comm.OpMax, 0); err != nil {
		return &comm.CommunicatorError{Op: "reduce event duration", Err: err}
	}
	if err := g.Reduce(minv, comm.OpMin, 0); err != nil {
		return &comm.CommunicatorError{Op: "reduce event duration", Err: err}
	}
	if err := g.Reduce(sumv, comm.OpSum, 0); err != nil {
		return &comm.CommunicatorError{Op: "reduce event duration", Err: err}
	}
	if rank == 0 {
		fmt.Fprintf(buf, "%-45s %13.6f %13.6f %13.6f s.\n",
			fmt.Sprintf("%sEvent '%s' took", prefix, t.nodes[idx].name),
			maxv[0], minv[0], sumv[0]/float64(size))
	}

	count := []int{len(t.nodes[idx].order)}
	if err := g.BcastInt(count, 0); err != nil {
		return &comm.CommunicatorError{Op: "broadcast event count", Err: err}
	}
	for i := 0; i < count[0]; i++ {
		var name string
		if rank == 0 {
			name = t.nodes[t.nodes[idx].order[i]].name
		}
		if err := g.BcastString(&name, 0); err != nil {
			return &comm.CommunicatorError{Op: "broadcast event name", Err: err}
		}
		if err := t.reduceEvent(buf, g, rank, size, prefix+"  ", t.ensureChild(idx, name)); err != nil {
			return err
		}
	}
	return nil
}

// syncShape makes sure every process holds at least the authority's
// entries at the level under parent (-1 for the roots), creating
// zero-duration stand-ins for missing branches, then recurses.
func (t *Timing) syncShape(g comm.Group, parent int) error {
	rank := g.Rank()
	var count []int
	if parent < 0 {
		count = []int{len(t.roots)}
	} else {
		count = []int{len(t.nodes[parent].order)}
	}
	if err := g.BcastInt(count, 0); err != nil {
		return &comm.CommunicatorError{Op: "broadcast event count", Err: err}
	}
	for i := 0; i < count[0]; i++ {
		var name string
		if rank == 0 {
			if parent < 0 {
				name = t.nodes[t.roots[i]].name
			} else {
				name = t.nodes[t.nodes[parent].order[i]].name
			}
		}
		if err := g.BcastString(&name, 0); err != nil {
			return &comm.CommunicatorError{Op: "broadcast event name", Err: err}
		}
		var idx int
		if parent < 0 {
			idx = t.ensureRoot(name)
		} else {
			idx = t.ensureChild(parent, name)
		}
		if err := t.syncShape(g, idx); err != nil {
			return err
		}
	}
	return nil
}
