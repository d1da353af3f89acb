package topology_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/Green-Phys/green-utils/cluster"
	"github.com/Green-Phys/green-utils/comm"
	"github.com/Green-Phys/green-utils/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTwoNodes(t *testing.T) {
	c := cluster.New(2, 2)
	topos := make([]*topology.Topology, 4)
	c.Start(func(world comm.Group) {
		topo, err := topology.Build(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		topos[world.Rank()] = topo
	})
	require.NoError(t, c.Run())

	for rank, topo := range topos {
		require.NotNil(t, topo, "rank %d", rank)
		assert.Equal(t, rank, topo.GlobalRank)
		assert.Equal(t, 4, topo.GlobalSize)
		assert.Equal(t, 2, topo.NodeSize, "rank %d", rank)
		assert.Equal(t, rank%2, topo.NodeRank, "rank %d", rank)
	}

	// Node leaders form the cross-node group; everyone else holds the
	// sentinel but still knows its leader's coordinates.
	for rank, topo := range topos {
		if rank%2 == 0 {
			require.NotNil(t, topo.Internode, "rank %d", rank)
			assert.Equal(t, rank/2, topo.InternodeRank, "rank %d", rank)
			assert.Equal(t, 2, topo.InternodeSize, "rank %d", rank)
		} else {
			assert.Nil(t, topo.Internode, "rank %d", rank)
			assert.Equal(t, rank/2, topo.InternodeRank, "rank %d", rank)
			assert.Equal(t, 2, topo.InternodeSize, "rank %d", rank)
		}
		assert.Nil(t, topo.Devices, "rank %d", rank)
		assert.Equal(t, -1, topo.DevicesRank, "rank %d", rank)
		assert.Equal(t, -1, topo.DevicesSize, "rank %d", rank)
	}
}

func TestBuildSingleNode(t *testing.T) {
	c := cluster.New(3)
	topos := make([]*topology.Topology, 3)
	c.Start(func(world comm.Group) {
		topo, err := topology.Build(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		topos[world.Rank()] = topo
	})
	require.NoError(t, c.Run())

	for rank, topo := range topos {
		require.NotNil(t, topo, "rank %d", rank)
		assert.Equal(t, 3, topo.NodeSize)
		assert.Equal(t, rank, topo.NodeRank)
		assert.Equal(t, 0, topo.InternodeRank)
		assert.Equal(t, 1, topo.InternodeSize)
	}
	require.NotNil(t, topos[0].Internode)
	assert.Nil(t, topos[1].Internode)
}

func TestBuildDevices(t *testing.T) {
	c := cluster.New(2, 2)
	topos := make([]*topology.Topology, 4)
	c.Start(func(world comm.Group) {
		topo, err := topology.Build(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		if err := topo.BuildDevices(1, 2); err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		topos[world.Rank()] = topo
	})
	require.NoError(t, c.Run())

	for rank, topo := range topos {
		require.NotNil(t, topo, "rank %d", rank)
		if rank%2 == 0 {
			require.NotNil(t, topo.Devices, "rank %d", rank)
			assert.Equal(t, rank/2, topo.DevicesRank, "rank %d", rank)
			assert.Equal(t, 2, topo.DevicesSize, "rank %d", rank)
		} else {
			assert.Nil(t, topo.Devices, "rank %d", rank)
			assert.Equal(t, -1, topo.DevicesRank, "rank %d", rank)
			assert.Equal(t, -1, topo.DevicesSize, "rank %d", rank)
		}
	}
}

// A declared device count that does not match the participants fails
// with ConfigurationError and leaves the topology untouched.
func TestBuildDevicesMismatch(t *testing.T) {
	c := cluster.New(2, 2)
	var lock sync.Mutex
	errCount := 0
	c.Start(func(world comm.Group) {
		topo, err := topology.Build(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		err = topo.BuildDevices(1, 3)
		if topo.NodeRank < 1 {
			var cfgErr *comm.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("rank %d: expected ConfigurationError but got %v", world.Rank(), err)
			}
			lock.Lock()
			errCount++
			lock.Unlock()
		} else if err != nil {
			t.Errorf("rank %d: non-member should not fail: %v", world.Rank(), err)
		}
		if topo.Devices != nil || topo.DevicesRank != -1 || topo.DevicesSize != -1 {
			t.Errorf("rank %d: topology was mutated on failure", world.Rank())
		}
		if topo.Node == nil || topo.NodeSize != 2 {
			t.Errorf("rank %d: node group was disturbed", world.Rank())
		}
	})
	require.NoError(t, c.Run())
	assert.Equal(t, 2, errCount)
}

func TestHolderInitOnce(t *testing.T) {
	c := cluster.New(2)
	c.Start(func(world comm.Group) {
		var holder topology.Holder
		first, err := holder.Init(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		second, err := holder.Init(world)
		if err != nil {
			t.Errorf("rank %d: %v", world.Rank(), err)
			return
		}
		if first != second {
			t.Errorf("rank %d: Init rebuilt the topology", world.Rank())
		}
		if holder.Get() != first {
			t.Errorf("rank %d: Get returned a different topology", world.Rank())
		}
	})
	require.NoError(t, c.Run())
}
