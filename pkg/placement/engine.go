// Package placement assigns file blocks to datanodes round-robin.
package placement

import (
	"errors"
	"fmt"

	"minidfs/pkg/membership"
	"minidfs/pkg/types"
)

var ErrNoNodesAvailable = errors.New("no datanodes available for placement")

// Engine places blocks on the nodes of a membership table. Block k always goes
// to the node at position k mod liveCount in slot order, so placement depends
// only on the block index and the membership at the time of the call.
type Engine struct {
	members *membership.Table
}

func NewEngine(members *membership.Table) *Engine {
	return &Engine{members: members}
}

// Assign places blocks [from, from+count) of file. Missing block records are
// appended. Blocks outside the range are left as they are.
func (e *Engine) Assign(file *types.FileRecord, from, count int) error {
	if count <= 0 {
		return nil
	}
	if from < 0 {
		return fmt.Errorf("invalid start block %d", from)
	}

	err := e.members.View(func(nodes []types.NodeRecord) error {
		if len(nodes) == 0 {
			return ErrNoNodesAvailable
		}

		for len(file.Blocks) < from+count {
			file.Blocks = append(file.Blocks, types.BlockRecord{Owner: file.Name, Index: len(file.Blocks)})
		}

		for i := 0; i < count; i++ {
			index := from + i
			node := nodes[index%len(nodes)]
			file.Blocks[index] = types.BlockRecord{
				Owner:   file.Name,
				Index:   index,
				NodeID:  node.ID,
				Address: node.Address,
				Port:    node.Port,
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("place %d blocks of %q: %w", count, file.Name, err)
	}

	if file.BlockCount < from+count {
		file.BlockCount = from + count
	}
	return nil
}
