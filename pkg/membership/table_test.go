package membership

import (
	"fmt"
	"sync"
	"testing"

	"minidfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	table := NewTable(4)

	t.Run("NewIdentity", func(t *testing.T) {
		ok, created := table.Register(2, "10.0.0.2", 7002)
		require.True(t, ok)
		assert.True(t, created)

		snap := table.Snapshot()
		assert.Equal(t, 1, snap.LiveCount)
		require.Len(t, snap.Nodes, 1)
		assert.Equal(t, types.NodeRecord{ID: 2, Address: "10.0.0.2", Port: 7002}, snap.Nodes[0])
	})

	t.Run("OverwriteKeepsCount", func(t *testing.T) {
		ok, created := table.Register(2, "10.0.0.20", 7020)
		require.True(t, ok)
		assert.False(t, created, "same identity overwrites in place")

		snap := table.Snapshot()
		assert.Equal(t, 1, snap.LiveCount)
		assert.Equal(t, "10.0.0.20", snap.Nodes[0].Address)
		assert.Equal(t, int32(7020), snap.Nodes[0].Port)
	})

	t.Run("CapacityBoundaryAccepted", func(t *testing.T) {
		ok, created := table.Register(4, "10.0.0.4", 7004)
		assert.True(t, ok)
		assert.True(t, created)
		assert.Equal(t, 2, table.Count())
	})
}

func TestRegisterRejectsOutOfRange(t *testing.T) {
	table := NewTable(3)
	ok, _ := table.Register(1, "10.0.0.1", 7001)
	require.True(t, ok)

	for _, id := range []types.NodeID{0, -1, 4, 100} {
		t.Run(fmt.Sprintf("id=%d", id), func(t *testing.T) {
			before := table.Snapshot()
			ok, created := table.Register(id, "10.9.9.9", 9999)
			assert.False(t, ok)
			assert.False(t, created)
			assert.Equal(t, before, table.Snapshot())
		})
	}
}

func TestSnapshotSlotOrder(t *testing.T) {
	table := NewTable(8)
	table.Register(5, "10.0.0.5", 5)
	table.Register(1, "10.0.0.1", 1)
	table.Register(3, "10.0.0.3", 3)

	snap := table.Snapshot()
	ids := make([]types.NodeID, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []types.NodeID{1, 3, 5}, ids)
}

func TestSafeModeTransition(t *testing.T) {
	table := NewTable(2)
	assert.True(t, table.SafeMode())

	// rejected registrations never leave safe mode
	table.Register(9, "10.0.0.9", 9)
	assert.True(t, table.SafeMode())

	table.Register(1, "10.0.0.1", 1)
	assert.False(t, table.SafeMode())
	select {
	case <-table.Ready():
	default:
		t.Fatal("ready channel should be closed after first registration")
	}

	table.Register(1, "10.0.0.11", 11)
	table.Register(2, "10.0.0.2", 2)
	assert.False(t, table.SafeMode())
}

func TestConcurrentRegistration(t *testing.T) {
	table := NewTable(32)

	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			table.Register(types.NodeID(id), fmt.Sprintf("10.0.0.%d", id), int32(7000+id))
			_ = table.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, table.Count())
}

func TestView(t *testing.T) {
	table := NewTable(4)
	table.Register(2, "10.0.0.2", 2)
	table.Register(1, "10.0.0.1", 1)

	var seen []types.NodeID
	err := table.View(func(nodes []types.NodeRecord) error {
		for _, n := range nodes {
			seen = append(seen, n.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{1, 2}, seen)
}
