package cluster

import (
	"fmt"
	"sort"

	"github.com/Green-Phys/green-utils/comm"
)

// group is one rank's view of a communicator over the simulated
// cluster. Every member owns one incoming stream per group; collective
// operations are request/response rounds through a coordinator rank,
// which keeps rounds from interleaving given the transport's per-
// destination ordering.
type group struct {
	c       *Cluster
	h       *Handle
	rank    int
	globals []int // group rank -> world rank
	streams []*Stream
}

// Messages exchanged by the collective protocols. Every message type
// names its round; a type mismatch on receive means the members of a
// group disagreed on the order of collective calls.
type (
	barrierMsg struct{ from int }
	ackMsg     struct{}
	reduceMsg  struct {
		from int
		vec  []float64
	}
	vecMsg  struct{ vec []float64 }
	intsMsg struct{ ints []int }
	strMsg  struct{ s string }

	splitMsg struct {
		from, color, key int
		stream           *Stream
	}
	groupInfoMsg struct {
		rank    int
		globals []int
		streams []*Stream
	}

	allocMsg struct {
		from, local int
	}
	winMsg struct {
		id   string
		base []float64
	}
)

func (g *group) Rank() int { return g.rank }
func (g *group) Size() int { return len(g.streams) }

func (g *group) Wtime() float64 { return g.c.wtime() }

func (g *group) send(dst int, msg any) {
	g.c.tr.send(g.h, g.streams[dst], msg)
}

func (g *group) recv() any {
	return g.h.Poll(g.streams[g.rank]).Message
}

func (g *group) checkRoot(op string, root int) error {
	if root < 0 || root >= len(g.streams) {
		return &comm.CommunicatorError{Op: op, Err: fmt.Errorf("root %d out of range [0, %d)", root, len(g.streams))}
	}
	return nil
}

// Barrier blocks until every member has entered it. Rank 0
// coordinates: it gathers one message per member and then releases
// them all.
func (g *group) Barrier() error {
	if len(g.streams) == 1 {
		return nil
	}
	if g.rank == 0 {
		for i := 1; i < len(g.streams); i++ {
			_ = g.recv().(barrierMsg)
		}
		for i := 1; i < len(g.streams); i++ {
			g.send(i, ackMsg{})
		}
	} else {
		g.send(0, barrierMsg{from: g.rank})
		_ = g.recv().(ackMsg)
	}
	return nil
}

// Reduce gathers every member's contribution at root and folds them in
// rank order, leaving the result in root's vec. The round is fully
// acknowledged so that no member can race ahead into the next
// collective before root has collected everything.
func (g *group) Reduce(vec []float64, op comm.Op, root int) error {
	if err := g.checkRoot("reduce", root); err != nil {
		return err
	}
	if len(g.streams) == 1 {
		return nil
	}
	if g.rank == root {
		slots := make([][]float64, len(g.streams))
		for i := 1; i < len(g.streams); i++ {
			m := g.recv().(reduceMsg)
			slots[m.from] = m.vec
		}
		for r := 0; r < len(g.streams); r++ {
			if r == root {
				continue
			}
			op.Combine(vec, slots[r])
		}
		for r := 0; r < len(g.streams); r++ {
			if r != root {
				g.send(r, ackMsg{})
			}
		}
	} else {
		sent := append([]float64(nil), vec...)
		g.send(root, reduceMsg{from: g.rank, vec: sent})
		_ = g.recv().(ackMsg)
	}
	return nil
}

// Bcast replicates root's vec into every member's vec. No
// acknowledgement is needed: the per-destination transport ordering
// keeps a later round's payload from overtaking this one.
func (g *group) Bcast(vec []float64, root int) error {
	if err := g.checkRoot("broadcast", root); err != nil {
		return err
	}
	if len(g.streams) == 1 {
		return nil
	}
	if g.rank == root {
		for r := 0; r < len(g.streams); r++ {
			if r != root {
				g.send(r, vecMsg{vec: append([]float64(nil), vec...)})
			}
		}
	} else {
		m := g.recv().(vecMsg)
		if len(m.vec) != len(vec) {
			return &comm.CommunicatorError{Op: "broadcast", Err: fmt.Errorf("length mismatch: got %d, have %d", len(m.vec), len(vec))}
		}
		copy(vec, m.vec)
	}
	return nil
}

func (g *group) BcastInt(vec []int, root int) error {
	if err := g.checkRoot("broadcast", root); err != nil {
		return err
	}
	if len(g.streams) == 1 {
		return nil
	}
	if g.rank == root {
		for r := 0; r < len(g.streams); r++ {
			if r != root {
				g.send(r, intsMsg{ints: append([]int(nil), vec...)})
			}
		}
	} else {
		m := g.recv().(intsMsg)
		if len(m.ints) != len(vec) {
			return &comm.CommunicatorError{Op: "broadcast", Err: fmt.Errorf("length mismatch: got %d, have %d", len(m.ints), len(vec))}
		}
		copy(vec, m.ints)
	}
	return nil
}

func (g *group) BcastString(s *string, root int) error {
	if err := g.checkRoot("broadcast", root); err != nil {
		return err
	}
	if len(g.streams) == 1 {
		return nil
	}
	if g.rank == root {
		for r := 0; r < len(g.streams); r++ {
			if r != root {
				g.send(r, strMsg{s: *s})
			}
		}
	} else {
		*s = g.recv().(strMsg).s
	}
	return nil
}

// Split partitions the group by color. Rank 0 gathers every member's
// (color, key, fresh stream), forms one subgroup per non-negative
// color ordered by (key, world rank), and hands each participant its
// new membership table.
func (g *group) Split(color, key int) (comm.Group, error) {
	var stream *Stream
	if color >= 0 {
		stream = g.c.loop.Stream()
	}

	var info groupInfoMsg
	if g.rank == 0 {
		reqs := make([]splitMsg, len(g.streams))
		reqs[0] = splitMsg{from: 0, color: color, key: key, stream: stream}
		for i := 1; i < len(g.streams); i++ {
			m := g.recv().(splitMsg)
			reqs[m.from] = m
		}
		infos := assembleSubgroups(reqs, g.globals)
		for r := 1; r < len(g.streams); r++ {
			g.send(r, infos[r])
		}
		info = infos[0]
	} else {
		g.send(0, splitMsg{from: g.rank, color: color, key: key, stream: stream})
		info = g.recv().(groupInfoMsg)
	}

	if info.rank < 0 {
		return nil, nil
	}
	return &group{
		c:       g.c,
		h:       g.h,
		rank:    info.rank,
		globals: info.globals,
		streams: info.streams,
	}, nil
}

// SplitShared partitions the group by simulated machine, so that
// co-located ranks form one shared-memory group.
func (g *group) SplitShared(key int) (comm.Group, error) {
	return g.Split(g.c.node[g.globals[g.rank]], key)
}

// assembleSubgroups computes each member's new-group descriptor from
// the gathered split requests.
func assembleSubgroups(reqs []splitMsg, globals []int) []groupInfoMsg {
	infos := make([]groupInfoMsg, len(reqs))
	byColor := map[int][]int{}
	for r, req := range reqs {
		if req.color >= 0 {
			byColor[req.color] = append(byColor[req.color], r)
		} else {
			infos[r] = groupInfoMsg{rank: -1}
		}
	}
	for _, members := range byColor {
		ms := members
		sort.Slice(ms, func(i, j int) bool {
			a, b := reqs[ms[i]], reqs[ms[j]]
			if a.key != b.key {
				return a.key < b.key
			}
			return globals[ms[i]] < globals[ms[j]]
		})
		newGlobals := make([]int, len(ms))
		newStreams := make([]*Stream, len(ms))
		for newRank, r := range ms {
			newGlobals[newRank] = globals[r]
			newStreams[newRank] = reqs[r].stream
		}
		for newRank, r := range ms {
			infos[r] = groupInfoMsg{
				rank:    newRank,
				globals: newGlobals,
				streams: newStreams,
			}
		}
	}
	return infos
}
