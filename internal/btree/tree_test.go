package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novadb/novadb/internal/value"
)

func TestInsertAndSearchSingleKey(t *testing.T) {
	tr := New(4, nil)
	tr.Insert(value.Int(1), 100)
	assert.Equal(t, []uint32{100}, tr.Search(value.Int(1)))
}

func TestSearchMissingKeyReturnsNil(t *testing.T) {
	tr := New(4, nil)
	tr.Insert(value.Int(1), 100)
	assert.Nil(t, tr.Search(value.Int(2)))
}

func TestInsertTriggersLeafAndInternalSplits(t *testing.T) {
	tr := New(4, nil)
	for i := int64(0); i < 50; i++ {
		tr.Insert(value.Int(i), uint32(i))
	}
	assert.Greater(t, tr.Height(), 1)
	for i := int64(0); i < 50; i++ {
		assert.Equal(t, []uint32{uint32(i)}, tr.Search(value.Int(i)), "key %d", i)
	}
}

func TestDuplicateKeysAllowed(t *testing.T) {
	tr := New(4, nil)
	tr.Insert(value.Int(1), 1)
	tr.Insert(value.Int(1), 2)
	assert.ElementsMatch(t, []uint32{1, 2}, tr.Search(value.Int(1)))
}

// TestDuplicateRunStraddlingLeafSplitIsFullyVisible forces the specific
// split that can strand a duplicate key's earlier rids in the left leaf:
// order 4, four inserts of the same key splits at (4+1)/2=2, leaving
// rids{1,2} on the left leaf and rids{3,4} on the right, with the promoted
// routing key equal to the duplicate value. Every rid must still surface
// from Search, Range, and Remove.
func TestDuplicateRunStraddlingLeafSplitIsFullyVisible(t *testing.T) {
	tr := New(4, nil)
	for rid := uint32(1); rid <= 4; rid++ {
		tr.Insert(value.Int(10), rid)
	}
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, tr.Search(value.Int(10)))
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, tr.Range(value.Int(10), value.Int(10)))

	require.True(t, tr.Remove(value.Int(10), 1))
	assert.ElementsMatch(t, []uint32{2, 3, 4}, tr.Search(value.Int(10)))
}

func TestRangeAcrossLeafBoundary(t *testing.T) {
	tr := New(4, nil)
	for i := int64(0); i < 30; i++ {
		tr.Insert(value.Int(i), uint32(i))
	}
	ids := tr.Range(value.Int(10), value.Int(15))
	expected := []uint32{10, 11, 12, 13, 14, 15}
	assert.ElementsMatch(t, expected, ids)
}

func TestRemoveDeletesOneMatchingPair(t *testing.T) {
	tr := New(4, nil)
	tr.Insert(value.Int(1), 1)
	tr.Insert(value.Int(1), 2)
	require.True(t, tr.Remove(value.Int(1), 1))
	assert.Equal(t, []uint32{2}, tr.Search(value.Int(1)))
}

func TestRemoveMissingReturnsFalse(t *testing.T) {
	tr := New(4, nil)
	tr.Insert(value.Int(1), 1)
	assert.False(t, tr.Remove(value.Int(2), 1))
}

func TestEmptyTreeIsEmpty(t *testing.T) {
	tr := New(4, nil)
	assert.True(t, tr.IsEmpty())
	assert.Equal(t, 0, tr.Height())
	assert.Nil(t, tr.Search(value.Int(1)))
	assert.Nil(t, tr.Range(value.Int(0), value.Int(10)))
	assert.False(t, tr.Remove(value.Int(1), 1))
}

func TestOrderBelowMinimumFallsBackToDefault(t *testing.T) {
	tr := New(2, nil)
	tr.Insert(value.Int(1), 1)
	assert.Equal(t, []uint32{1}, tr.Search(value.Int(1)))
}
