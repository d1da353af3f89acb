// Package topology derives node-local and cross-node process groups
// (and optional device groups) from a global group.
//
// A Topology is built once and read-only afterwards. Non-members of a
// derived group hold a nil group and the sentinel rank/size (-1, -1).
package topology

import (
	"fmt"
	"sync"

	"github.com/Green-Phys/green-utils/comm"
)

// Topology holds a process's membership in the global group, its
// shared-memory node group, the cross-node group formed by the
// node-rank-0 processes, and an optional device group.
type Topology struct {
	Global     comm.Group
	GlobalRank int
	GlobalSize int

	Node     comm.Group
	NodeRank int
	NodeSize int

	// Internode is nil on processes with non-zero node rank; their
	// InternodeRank and InternodeSize are -1. Every process still
	// learns the cross-node rank and size of its node leader.
	Internode     comm.Group
	InternodeRank int
	InternodeSize int

	// Devices is populated by BuildDevices; nil with sentinel (-1, -1)
	// until then and on processes outside the device group.
	Devices     comm.Group
	DevicesRank int
	DevicesSize int
}

// Build derives the node-local and cross-node groups from global.
//
// The node group is a shared-memory split of the global group. The
// processes with node rank 0 form the cross-node group; everyone else
// gets the sentinel. The global root must come out as cross-node rank
// 0, anything else means the substrate produced inconsistent splits.
func Build(global comm.Group) (*Topology, error) {
	t := &Topology{
		Global:        global,
		GlobalRank:    global.Rank(),
		GlobalSize:    global.Size(),
		InternodeRank: -1,
		InternodeSize: -1,
		DevicesRank:   -1,
		DevicesSize:   -1,
	}

	node, err := global.SplitShared(t.GlobalRank)
	if err != nil {
		return nil, &comm.CommunicatorError{Op: "split shared-memory group", Err: err}
	}
	if node == nil {
		return nil, &comm.ProtocolViolation{Reason: "shared-memory split produced no node group"}
	}
	t.Node = node
	t.NodeRank = node.Rank()
	t.NodeSize = node.Size()

	color := comm.Undefined
	if t.NodeRank == 0 {
		color = 0
	}
	inter, err := global.Split(color, t.GlobalRank)
	if err != nil {
		return nil, &comm.CommunicatorError{Op: "split cross-node group", Err: err}
	}
	if inter != nil {
		t.Internode = inter
		t.InternodeRank = inter.Rank()
		t.InternodeSize = inter.Size()
		if t.GlobalRank == 0 && t.InternodeRank != 0 {
			return nil, &comm.ProtocolViolation{Reason: "root rank mismatch"}
		}
	}

	// Let every rank know its node leader's cross-node coordinates.
	pair := []int{t.InternodeRank, t.InternodeSize}
	if err := node.BcastInt(pair, 0); err != nil {
		return nil, &comm.CommunicatorError{Op: "broadcast cross-node layout", Err: err}
	}
	if t.NodeRank != 0 {
		t.InternodeRank = pair[0]
		t.InternodeSize = pair[1]
	}

	return t, nil
}

// BuildDevices derives the device group: the perNode lowest node ranks
// of every node join. The resulting group size must equal total; on a
// mismatch the Topology is left untouched.
//
// BuildDevices is collective over the global group.
func (t *Topology) BuildDevices(perNode, total int) error {
	color := comm.Undefined
	if t.NodeRank < perNode {
		color = 0
	}
	dev, err := t.Global.Split(color, t.GlobalRank)
	if err != nil {
		return &comm.CommunicatorError{Op: "split device group", Err: err}
	}
	if dev == nil {
		return nil
	}
	if dev.Size() != total {
		return &comm.ConfigurationError{
			Reason: fmt.Sprintf("device group size mismatch: declared %d, got %d", total, dev.Size()),
		}
	}
	t.Devices = dev
	t.DevicesRank = dev.Rank()
	t.DevicesSize = dev.Size()
	return nil
}

// A Holder guards a Topology that is initialized exactly once and
// read-only afterwards. It replaces an ambient process-wide singleton
// with an explicit object handed to dependent constructors.
type Holder struct {
	once sync.Once
	t    *Topology
	err  error
}

// Init builds the Topology on the first call and returns the stored
// result (or error) on every call after that, regardless of the
// argument.
func (h *Holder) Init(global comm.Group) (*Topology, error) {
	h.once.Do(func() {
		h.t, h.err = Build(global)
	})
	return h.t, h.err
}

// Get returns the held Topology. It panics if Init has not succeeded.
func (h *Holder) Get() *Topology {
	if h.t == nil {
		panic("topology: Holder.Get before successful Init")
	}
	return h.t
}
