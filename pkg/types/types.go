package types

// MaxFileNameLength is the longest file name the namenode stores, in bytes.
const MaxFileNameLength = 255

// NodeID is the caller-assigned identity of a datanode. Valid identities start at 1.
type NodeID int32

type NodeRecord struct {
	ID      NodeID
	Address string
	Port    int32
}

type BlockRecord struct {
	Owner   string
	Index   int
	NodeID  NodeID
	Address string // copied at assignment time
	Port    int32
}

type FileRecord struct {
	Name       string
	Size       uint64
	BlockCount int
	Blocks     []BlockRecord
}

// Clone returns a deep copy so callers never share a block slice with a store.
func (f *FileRecord) Clone() FileRecord {
	out := *f
	out.Blocks = make([]BlockRecord, len(f.Blocks))
	copy(out.Blocks, f.Blocks)
	return out
}

type ClusterSnapshot struct {
	LiveCount int
	Nodes     []NodeRecord
}
