// Package catalog holds the in-memory file namespace: each file's declared
// size and its ordered list of block placements.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"minidfs/pkg/types"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrCatalogFull  = errors.New("file catalog is full")
	ErrNameTooLong  = errors.New("file name too long")
	ErrInvalidBlock = errors.New("block size must be positive")
	ErrFileTooLarge = errors.New("file exceeds block limit")
)

// Catalog is a fixed-capacity registry of files keyed by name. Records handed
// out are copies; all mutation goes through Upsert or Mutate.
type Catalog struct {
	capacity  int
	blockSize uint64
	maxBlocks int

	files map[string]*types.FileRecord
	mu    sync.RWMutex
}

// New creates a catalog holding at most capacity files of at most maxBlocks
// blocks each.
func New(capacity int, blockSize uint64, maxBlocks int) (*Catalog, error) {
	if blockSize == 0 {
		return nil, ErrInvalidBlock
	}
	if maxBlocks <= 0 {
		return nil, fmt.Errorf("max blocks per file must be positive, got %d", maxBlocks)
	}
	return &Catalog{
		capacity:  capacity,
		blockSize: blockSize,
		maxBlocks: maxBlocks,
		files:     make(map[string]*types.FileRecord),
	}, nil
}

func (c *Catalog) BlockSize() uint64 {
	return c.blockSize
}

func (c *Catalog) Capacity() int {
	return c.capacity
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// BlockCount is ceil(size / block size). It fails with ErrFileTooLarge when
// the result exceeds the per-file block limit.
func (c *Catalog) BlockCount(size uint64) (int, error) {
	n := size / c.blockSize
	if size%c.blockSize != 0 {
		n++
	}
	if n > uint64(c.maxBlocks) {
		return 0, fmt.Errorf("%d bytes needs %d blocks, limit %d: %w", size, n, c.maxBlocks, ErrFileTooLarge)
	}
	return int(n), nil
}

func (c *Catalog) FindByName(name string) (types.FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.files[name]
	if !ok {
		return types.FileRecord{}, false
	}
	return rec.Clone(), true
}

// CreateIfAbsent returns the record for name, creating an empty one with the
// given declared size if none exists. The bool reports whether it was created.
func (c *Catalog) CreateIfAbsent(name string, declaredSize uint64) (types.FileRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.files[name]; ok {
		return rec.Clone(), false, nil
	}
	rec, err := c.newRecordLocked(name, declaredSize)
	if err != nil {
		return types.FileRecord{}, false, err
	}
	c.files[name] = rec
	return rec.Clone(), true, nil
}

// GrowIfLarger raises rec's declared size to newDeclaredSize when it is larger
// and appends unassigned blocks up to the recomputed block count. It returns
// the number of blocks appended; a smaller or equal size leaves rec untouched.
// A size past the block limit fails with ErrFileTooLarge before rec changes.
func (c *Catalog) GrowIfLarger(rec *types.FileRecord, newDeclaredSize uint64) (int, error) {
	required, err := c.BlockCount(newDeclaredSize)
	if err != nil {
		return 0, err
	}
	if newDeclaredSize <= rec.Size && required <= rec.BlockCount {
		return 0, nil
	}
	if newDeclaredSize > rec.Size {
		rec.Size = newDeclaredSize
	}

	added := 0
	for i := rec.BlockCount; i < required; i++ {
		rec.Blocks = append(rec.Blocks, types.BlockRecord{Owner: rec.Name, Index: i})
		added++
	}
	if required > rec.BlockCount {
		rec.BlockCount = required
	}
	return added, nil
}

// Mutate applies fn to a working copy of the named file under the catalog
// lock. The copy replaces the stored record only if fn returns nil.
func (c *Catalog) Mutate(name string, fn func(rec *types.FileRecord) error) (types.FileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.files[name]
	if !ok {
		return types.FileRecord{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	work := stored.Clone()
	if err := fn(&work); err != nil {
		return stored.Clone(), err
	}
	*stored = work
	return work.Clone(), nil
}

// Upsert is Mutate that first creates the file when absent. A file created by
// Upsert is discarded again if fn fails.
func (c *Catalog) Upsert(name string, declaredSize uint64, fn func(rec *types.FileRecord, created bool) error) (types.FileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, exists := c.files[name]
	if !exists {
		rec, err := c.newRecordLocked(name, declaredSize)
		if err != nil {
			return types.FileRecord{}, err
		}
		stored = rec
	}

	work := stored.Clone()
	if err := fn(&work, !exists); err != nil {
		if !exists {
			return types.FileRecord{}, err
		}
		return stored.Clone(), err
	}
	*stored = work
	if !exists {
		c.files[name] = stored
	}
	return work.Clone(), nil
}

func (c *Catalog) newRecordLocked(name string, declaredSize uint64) (*types.FileRecord, error) {
	if len(name) > types.MaxFileNameLength {
		return nil, fmt.Errorf("%d bytes: %w", len(name), ErrNameTooLong)
	}
	if _, err := c.BlockCount(declaredSize); err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	if len(c.files) >= c.capacity {
		return nil, fmt.Errorf("%q: %w", name, ErrCatalogFull)
	}
	return &types.FileRecord{Name: name, Size: declaredSize}, nil
}
