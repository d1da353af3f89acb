package cluster

import (
	"math"
	"sync"
	"testing"

	"github.com/Green-Phys/green-utils/comm"
)

func TestWorldLayout(t *testing.T) {
	c := New(2, 3)
	if c.Size() != 5 {
		t.Fatalf("expected world size 5 but got %d", c.Size())
	}

	var lock sync.Mutex
	seen := map[int]bool{}
	c.Start(func(world comm.Group) {
		if world.Size() != 5 {
			t.Errorf("expected size 5 but got %d", world.Size())
		}
		lock.Lock()
		seen[world.Rank()] = true
		lock.Unlock()
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	for rank := 0; rank < 5; rank++ {
		if !seen[rank] {
			t.Errorf("rank %d never ran", rank)
		}
	}
}

func TestReduce(t *testing.T) {
	c := New(4)
	results := make([][]float64, 4)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		vec := []float64{float64(rank), float64(rank * rank), 1}
		if err := world.Reduce(vec, comm.OpSum, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		results[rank] = vec
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	expected := []float64{0 + 1 + 2 + 3, 0 + 1 + 4 + 9, 4}
	for i, x := range expected {
		if math.Abs(results[0][i]-x) > 1e-12 {
			t.Errorf("root component %d: expected %f but got %f", i, x, results[0][i])
		}
	}
}

func TestReduceMaxMin(t *testing.T) {
	c := New(3)
	var maxRes, minRes []float64
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		maxv := []float64{float64(rank)}
		minv := []float64{float64(rank)}
		if err := world.Reduce(maxv, comm.OpMax, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		if err := world.Reduce(minv, comm.OpMin, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		if rank == 0 {
			maxRes, minRes = maxv, minv
		}
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	if maxRes[0] != 2 {
		t.Errorf("expected max 2 but got %f", maxRes[0])
	}
	if minRes[0] != 0 {
		t.Errorf("expected min 0 but got %f", minRes[0])
	}
}

func TestBcast(t *testing.T) {
	c := New(2, 2)
	results := make([][]float64, 4)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		vec := make([]float64, 3)
		if rank == 1 {
			copy(vec, []float64{3, 1, 4})
		}
		if err := world.Bcast(vec, 1); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		results[rank] = vec
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	for rank, vec := range results {
		for i, x := range []float64{3, 1, 4} {
			if vec[i] != x {
				t.Errorf("rank %d component %d: expected %f but got %f", rank, i, x, vec[i])
			}
		}
	}
}

func TestBcastIntAndString(t *testing.T) {
	c := New(3)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		ints := make([]int, 2)
		s := ""
		if rank == 0 {
			ints[0], ints[1] = 42, 7
			s = "solver"
		}
		if err := world.BcastInt(ints, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		if err := world.BcastString(&s, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		if ints[0] != 42 || ints[1] != 7 {
			t.Errorf("rank %d: got ints %v", rank, ints)
		}
		if s != "solver" {
			t.Errorf("rank %d: got string %q", rank, s)
		}
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestAllreduceHelper(t *testing.T) {
	c := New(2, 2)
	results := make([][]float64, 4)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		vec := []float64{float64(rank + 1)}
		if err := comm.Allreduce(world, vec, comm.OpSum); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		results[rank] = vec
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	for rank, vec := range results {
		if vec[0] != 10 {
			t.Errorf("rank %d: expected 10 but got %f", rank, vec[0])
		}
	}
}

func TestSplitByParity(t *testing.T) {
	c := New(4)
	type result struct {
		rank, size int
	}
	results := make([]result, 4)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		sub, err := world.Split(rank%2, rank)
		if err != nil {
			t.Errorf("rank %d: %v", rank, err)
			return
		}
		results[rank] = result{sub.Rank(), sub.Size()}

		// The subgroup must support its own collectives.
		vec := []float64{1}
		if err := sub.Reduce(vec, comm.OpSum, 0); err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
		if sub.Rank() == 0 && vec[0] != 2 {
			t.Errorf("rank %d: expected subgroup sum 2 but got %f", rank, vec[0])
		}
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	for rank, res := range results {
		if res.size != 2 {
			t.Errorf("rank %d: expected subgroup size 2 but got %d", rank, res.size)
		}
		if res.rank != rank/2 {
			t.Errorf("rank %d: expected subgroup rank %d but got %d", rank, rank/2, res.rank)
		}
	}
}

func TestSplitUndefined(t *testing.T) {
	c := New(3)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		color := comm.Undefined
		if rank == 0 {
			color = 0
		}
		sub, err := world.Split(color, rank)
		if err != nil {
			t.Errorf("rank %d: %v", rank, err)
			return
		}
		if rank == 0 {
			if sub == nil || sub.Size() != 1 {
				t.Errorf("rank 0: expected a singleton group, got %v", sub)
			}
		} else if sub != nil {
			t.Errorf("rank %d: expected no group membership", rank)
		}
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestSplitShared(t *testing.T) {
	c := New(2, 3)
	type result struct {
		rank, size int
	}
	results := make([]result, 5)
	c.Start(func(world comm.Group) {
		rank := world.Rank()
		node, err := world.SplitShared(rank)
		if err != nil {
			t.Errorf("rank %d: %v", rank, err)
			return
		}
		results[rank] = result{node.Rank(), node.Size()}
	})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	expected := []result{{0, 2}, {1, 2}, {0, 3}, {1, 3}, {2, 3}}
	for rank, res := range results {
		if res != expected[rank] {
			t.Errorf("rank %d: expected %v but got %v", rank, expected[rank], res)
		}
	}
}

// TestBarrierDivergence checks that a rank skipping a barrier turns
// into a detected deadlock rather than a hang.
func TestBarrierDivergence(t *testing.T) {
	c := New(3)
	c.Start(func(world comm.Group) {
		if world.Rank() == 2 {
			return
		}
		world.Barrier()
	})
	if err := c.Run(); err == nil {
		t.Error("expected a deadlock error")
	}
}
