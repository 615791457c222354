// Package membership tracks the datanodes that have reported in via heartbeat.
package membership

import (
	"sort"
	"sync"

	"minidfs/pkg/types"
)

// Table is the registry of live datanodes. Identity n occupies slot n-1; a slot
// is filled by the first heartbeat from that identity and is never cleared.
type Table struct {
	capacity int

	nodes map[types.NodeID]*types.NodeRecord
	// ordered identities, rebuilt on insert so placement can index by slot order
	order []types.NodeID
	mu    sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
}

func NewTable(capacity int) *Table {
	return &Table{
		capacity: capacity,
		nodes:    make(map[types.NodeID]*types.NodeRecord),
		ready:    make(chan struct{}),
	}
}

// Register upserts the record for id and reports whether the slot was newly
// filled. Identities outside [1, capacity] are ignored and ok is false.
func (t *Table) Register(id types.NodeID, address string, port int32) (ok, created bool) {
	if id <= 0 || int(id) > t.capacity {
		return false, false
	}

	t.mu.Lock()
	node, exists := t.nodes[id]
	if !exists {
		node = &types.NodeRecord{ID: id}
		t.nodes[id] = node
		t.order = append(t.order, id)
		sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	}
	node.Address = address
	node.Port = port
	t.mu.Unlock()

	t.readyOnce.Do(func() { close(t.ready) })
	return true, !exists
}

// Ready is closed once the first registration succeeds.
func (t *Table) Ready() <-chan struct{} {
	return t.ready
}

func (t *Table) SafeMode() bool {
	select {
	case <-t.ready:
		return false
	default:
		return true
	}
}

func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *Table) Capacity() int {
	return t.capacity
}

// Snapshot copies the table in slot order.
func (t *Table) Snapshot() types.ClusterSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return types.ClusterSnapshot{
		LiveCount: len(t.order),
		Nodes:     t.nodesLocked(),
	}
}

// View runs fn with the slot-ordered node list while holding the read lock,
// so no registration can interleave with whatever fn computes from it.
func (t *Table) View(fn func(nodes []types.NodeRecord) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(t.nodesLocked())
}

func (t *Table) nodesLocked() []types.NodeRecord {
	nodes := make([]types.NodeRecord, 0, len(t.order))
	for _, id := range t.order {
		nodes = append(nodes, *t.nodes[id])
	}
	return nodes
}
