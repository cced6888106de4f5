package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/storage"
)

func fakeLoader(loads *int) Loader {
	return func(pageID uint32) (*storage.Page, error) {
		*loads++
		return storage.NewPage(pageID, storage.DataPage), nil
	}
}

func noopWriteBack(writes *[]uint32) WriteBack {
	return func(p *storage.Page) error {
		*writes = append(*writes, p.PageID())
		return nil
	}
}

func TestGetPageMissThenHit(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(3, fakeLoader(&loads), noopWriteBack(&writes), nil)

	_, err := p.GetPage(1)
	require.NoError(t, err)
	p.Unpin(1, false)

	_, err = p.GetPage(1)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), p.Stats().Hits)
	assert.Equal(t, uint64(1), p.Stats().Misses)
	assert.Equal(t, 1, loads)
}

// TestCapacityThreeLRUEvictionSequence exercises the documented capacity-3
// access pattern: pages 1,2,3,4 each miss and fill/evict in turn, then a
// second access to page 2 (still resident) hits. Expected: 1 hit, 4 misses,
// 1 eviction.
func TestCapacityThreeLRUEvictionSequence(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(3, fakeLoader(&loads), noopWriteBack(&writes), nil)

	for _, id := range []uint32{1, 2, 3, 4} {
		_, err := p.GetPage(id)
		require.NoError(t, err)
		p.Unpin(id, false)
	}
	_, err := p.GetPage(2)
	require.NoError(t, err)
	p.Unpin(2, false)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(4), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)

	assert.False(t, p.IsCached(1), "page 1 should have been the LRU victim")
	assert.True(t, p.IsCached(2))
	assert.True(t, p.IsCached(3))
	assert.True(t, p.IsCached(4))
}

func TestPinnedFrameIsNeverEvicted(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(2, fakeLoader(&loads), noopWriteBack(&writes), nil)

	_, err := p.GetPage(1)
	require.NoError(t, err)
	// page 1 stays pinned (no Unpin)

	_, err = p.GetPage(2)
	require.NoError(t, err)
	p.Unpin(2, false)

	_, err = p.GetPage(3)
	require.NoError(t, err)
	p.Unpin(3, false)

	assert.True(t, p.IsCached(1), "pinned page must survive eviction pressure")
	assert.False(t, p.IsCached(2), "only unpinned LRU victim should be evicted")
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(1, fakeLoader(&loads), noopWriteBack(&writes), nil)

	_, err := p.GetPage(1)
	require.NoError(t, err)
	p.Unpin(1, true)

	_, err = p.GetPage(2)
	require.NoError(t, err)

	assert.Equal(t, []uint32{1}, writes)
}

func TestPoolExhaustedWhenAllFramesPinned(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(1, fakeLoader(&loads), noopWriteBack(&writes), nil)

	_, err := p.GetPage(1)
	require.NoError(t, err)
	// page 1 stays pinned

	_, err = p.GetPage(2)
	assert.Error(t, err)
}

func TestPutPageAdmitsDirtyPinnedFrame(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(2, fakeLoader(&loads), noopWriteBack(&writes), nil)

	page := storage.NewPage(9, storage.DataPage)
	require.NoError(t, p.PutPage(page))
	assert.True(t, p.IsCached(9))

	require.NoError(t, p.FlushPage(9))
	assert.Equal(t, []uint32{9}, writes)
}

func TestRemoveDropsFrameWithoutWriteBack(t *testing.T) {
	var loads int
	var writes []uint32
	p := NewPool(2, fakeLoader(&loads), noopWriteBack(&writes), nil)

	page := storage.NewPage(5, storage.DataPage)
	require.NoError(t, p.PutPage(page))
	p.Remove(5)
	assert.False(t, p.IsCached(5))
	assert.Empty(t, writes)
}
