package main

import (
	"fmt"
	"os"

	"github.com/Green-Phys/green-utils/cluster"
	"github.com/Green-Phys/green-utils/comm"
	"github.com/Green-Phys/green-utils/shmem"
	"github.com/Green-Phys/green-utils/timing"
	"github.com/Green-Phys/green-utils/topology"
	"github.com/unixpickle/essentials"
)

// RunInfo describes one simulated cluster layout.
type RunInfo struct {
	RanksPerNode []int
	VecSize      int
	Rounds       int
}

func main() {
	runs := []RunInfo{
		{RanksPerNode: []int{2}, VecSize: 1000, Rounds: 10},
		{RanksPerNode: []int{2, 2}, VecSize: 1000, Rounds: 10},
		{RanksPerNode: []int{4, 4}, VecSize: 100000, Rounds: 5},
	}
	for _, run := range runs {
		fmt.Printf("=== nodes %v, %d elements, %d rounds ===\n",
			run.RanksPerNode, run.VecSize, run.Rounds)
		c := cluster.New(run.RanksPerNode...)
		c.Start(func(world comm.Group) {
			benchRank(world, run)
		})
		essentials.Must(c.Run())
	}
}

func benchRank(world comm.Group, run RunInfo) {
	topo, err := topology.Build(world)
	essentials.Must(err)

	tm := timing.New("bench")

	tm.Start("allreduce")
	vec := make([]float64, run.VecSize)
	for i := 0; i < run.Rounds; i++ {
		for j := range vec {
			vec[j] = float64(world.Rank() + j)
		}
		essentials.Must(comm.Allreduce(world, vec, comm.OpSum))
	}
	tm.End()

	tm.Start("shared-fill")
	seg, err := shmem.NewSized(topo.Node, run.VecSize)
	essentials.Must(err)
	essentials.Must(seg.Fence(0))
	off := 0
	for r := 0; r < topo.NodeRank; r++ {
		off += shmem.LocalSize(run.VecSize, r, topo.NodeSize)
	}
	data := seg.Object().Data()
	for i := 0; i < seg.LocalSize(); i++ {
		data[off+i] = float64(topo.NodeRank)
	}
	essentials.Must(seg.Fence(0))
	essentials.Must(seg.Close())
	tm.End()

	essentials.Must(tm.PrintGroup(os.Stdout, world))
}
