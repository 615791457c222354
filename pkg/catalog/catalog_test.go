package catalog

import (
	"errors"
	"math"
	"strings"
	"testing"

	"minidfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mib       = 1024 * 1024
	maxBlocks = 64
)

func newTestCatalog(t *testing.T, capacity int) *Catalog {
	c, err := New(capacity, 64*mib, maxBlocks)
	require.NoError(t, err)
	return c
}

func TestNewRejectsZeroBlockSize(t *testing.T) {
	_, err := New(4, 0, maxBlocks)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = New(4, 64*mib, 0)
	assert.Error(t, err)
}

func TestBlockCount(t *testing.T) {
	c := newTestCatalog(t, 1)

	tests := []struct {
		size     uint64
		expected int
	}{
		{0, 0},
		{1, 1},
		{64 * mib, 1},
		{64*mib + 1, 2},
		{150 * mib, 3},
		{300 * mib, 5},
		{maxBlocks * 64 * mib, maxBlocks},
	}
	for _, tt := range tests {
		n, err := c.BlockCount(tt.size)
		require.NoError(t, err, "size %d", tt.size)
		assert.Equal(t, tt.expected, n, "size %d", tt.size)
	}

	for _, size := range []uint64{maxBlocks*64*mib + 1, 1 << 63, math.MaxUint64} {
		_, err := c.BlockCount(size)
		assert.ErrorIs(t, err, ErrFileTooLarge, "size %d", size)
	}
}

func TestCreateIfAbsent(t *testing.T) {
	c := newTestCatalog(t, 2)

	rec, created, err := c.CreateIfAbsent("a.txt", 10)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a.txt", rec.Name)
	assert.Equal(t, uint64(10), rec.Size)
	assert.Zero(t, rec.BlockCount)

	rec, created, err = c.CreateIfAbsent("a.txt", 99)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(10), rec.Size, "existing record is returned unchanged")

	_, _, err = c.CreateIfAbsent("b.txt", 1)
	require.NoError(t, err)

	_, _, err = c.CreateIfAbsent("c.txt", 1)
	assert.ErrorIs(t, err, ErrCatalogFull)
	assert.Equal(t, 2, c.Len())

	_, found := c.FindByName("c.txt")
	assert.False(t, found)
}

func TestCreateRejectsOversizedFile(t *testing.T) {
	c := newTestCatalog(t, 2)

	_, _, err := c.CreateIfAbsent("huge", 1<<63)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, c.Len())
}

func TestCreateRejectsLongName(t *testing.T) {
	c := newTestCatalog(t, 2)

	_, _, err := c.CreateIfAbsent(strings.Repeat("x", types.MaxFileNameLength+1), 1)
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, _, err = c.CreateIfAbsent(strings.Repeat("x", types.MaxFileNameLength), 1)
	assert.NoError(t, err)
}

func TestGrowIfLarger(t *testing.T) {
	c := newTestCatalog(t, 1)
	rec := types.FileRecord{Name: "a.txt", Size: 150 * mib}
	added, err := c.GrowIfLarger(&rec, 150*mib)
	require.NoError(t, err)
	require.Equal(t, 3, added)
	assert.Equal(t, 3, rec.BlockCount)

	t.Run("SmallerIsNoop", func(t *testing.T) {
		before := rec.Clone()
		added, err := c.GrowIfLarger(&rec, 10)
		require.NoError(t, err)
		assert.Zero(t, added)
		assert.Equal(t, before, rec)
	})

	t.Run("LargerWithinLastBlock", func(t *testing.T) {
		added, err := c.GrowIfLarger(&rec, 160*mib)
		require.NoError(t, err)
		assert.Zero(t, added)
		assert.Equal(t, uint64(160*mib), rec.Size)
		assert.Equal(t, 3, rec.BlockCount)
	})

	t.Run("LargerAppendsBlocks", func(t *testing.T) {
		added, err := c.GrowIfLarger(&rec, 300*mib)
		require.NoError(t, err)
		assert.Equal(t, 2, added)
		assert.Equal(t, 5, rec.BlockCount)
		require.Len(t, rec.Blocks, 5)
		for i, b := range rec.Blocks {
			assert.Equal(t, i, b.Index)
			assert.Equal(t, "a.txt", b.Owner)
		}
		assert.Zero(t, rec.Blocks[4].NodeID)
	})

	t.Run("PastBlockLimit", func(t *testing.T) {
		before := rec.Clone()
		added, err := c.GrowIfLarger(&rec, 1<<63)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Zero(t, added)
		assert.Equal(t, before, rec)
	})
}

func TestFindByNameReturnsCopy(t *testing.T) {
	c := newTestCatalog(t, 1)
	_, err := c.Upsert("a.txt", 64*mib, func(rec *types.FileRecord, created bool) error {
		if _, err := c.GrowIfLarger(rec, rec.Size); err != nil {
			return err
		}
		rec.Blocks[0].NodeID = 1
		return nil
	})
	require.NoError(t, err)

	rec, ok := c.FindByName("a.txt")
	require.True(t, ok)
	rec.Blocks[0].NodeID = 42

	again, _ := c.FindByName("a.txt")
	assert.Equal(t, types.NodeID(1), again.Blocks[0].NodeID)
}

func TestMutate(t *testing.T) {
	c := newTestCatalog(t, 1)
	_, _, err := c.CreateIfAbsent("a.txt", 64*mib)
	require.NoError(t, err)

	t.Run("Missing", func(t *testing.T) {
		_, err := c.Mutate("nope", func(rec *types.FileRecord) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("FailureLeavesStateUnchanged", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := c.Mutate("a.txt", func(rec *types.FileRecord) error {
			_, _ = c.GrowIfLarger(rec, 640*mib)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		rec, _ := c.FindByName("a.txt")
		assert.Equal(t, uint64(64*mib), rec.Size)
		assert.Zero(t, rec.BlockCount)
	})

	t.Run("Commit", func(t *testing.T) {
		rec, err := c.Mutate("a.txt", func(rec *types.FileRecord) error {
			_, err := c.GrowIfLarger(rec, 128*mib)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, rec.BlockCount)
	})
}

func TestUpsertDiscardsFailedCreate(t *testing.T) {
	c := newTestCatalog(t, 1)
	boom := errors.New("boom")

	_, err := c.Upsert("a.txt", 1, func(rec *types.FileRecord, created bool) error {
		assert.True(t, created)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	// the slot is still free
	_, err = c.Upsert("b.txt", 1, func(rec *types.FileRecord, created bool) error { return nil })
	require.NoError(t, err)

	_, err = c.Upsert("c.txt", 1, func(rec *types.FileRecord, created bool) error { return nil })
	assert.ErrorIs(t, err, ErrCatalogFull)
	assert.Equal(t, 1, c.Len())
}
