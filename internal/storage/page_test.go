package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPageStartsEmptyWithFullFreeSpace(t *testing.T) {
	p := NewPage(7, DataPage)
	assert.Equal(t, uint32(7), p.PageID())
	assert.Equal(t, DataPage, p.PageType())
	assert.Equal(t, uint16(0), p.SlotCount())
	assert.Equal(t, PageDataSize, p.FreeSpace())
	assert.True(t, p.IsValid())
}

func TestInsertGetRoundTrip(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, ok := p.InsertRecord([]byte("hello"))
	require.True(t, ok)
	data, ok := p.GetRecord(slot)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestInsertConsumesFreeSpace(t *testing.T) {
	p := NewPage(1, DataPage)
	before := p.FreeSpace()
	_, ok := p.InsertRecord([]byte("abcdefgh"))
	require.True(t, ok)
	assert.Equal(t, before-8-2-2, p.FreeSpace())
}

func TestInsertFailsWhenRecordExceedsFreeSpace(t *testing.T) {
	p := NewPage(1, DataPage)
	big := make([]byte, PageDataSize+1)
	_, ok := p.InsertRecord(big)
	assert.False(t, ok)
	assert.Equal(t, PageDataSize, p.FreeSpace())
}

func TestDeleteRecordTombstonesSlot(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, _ := p.InsertRecord([]byte("x"))
	require.True(t, p.DeleteRecord(slot))
	_, ok := p.GetRecord(slot)
	assert.False(t, ok)
}

func TestDeleteRecordReclaimsSpaceViaCompaction(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, _ := p.InsertRecord([]byte("0123456789"))
	afterInsert := p.FreeSpace()
	require.True(t, p.DeleteRecord(slot))
	assert.Greater(t, p.FreeSpace(), afterInsert)
}

func TestUpdateRecordInPlaceKeepsSlot(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, _ := p.InsertRecord([]byte("short"))
	ok := p.UpdateRecord(slot, []byte("longerpayload"))
	require.True(t, ok)
	data, _ := p.GetRecord(slot)
	assert.Equal(t, []byte("longerpayload"), data)
}

func TestUpdateRecordTooLargeLeavesPageUnchangedAndReportsFalse(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, _ := p.InsertRecord([]byte("seed"))
	freeBefore := p.FreeSpace()

	tooBig := make([]byte, freeBefore+100)
	ok := p.UpdateRecord(slot, tooBig)
	assert.False(t, ok)

	data, exists := p.GetRecord(slot)
	require.True(t, exists)
	assert.Equal(t, []byte("seed"), data)
	assert.True(t, p.IsValid())
}

func TestUpdateRecordGrowingToFillPageNeverPanics(t *testing.T) {
	p := NewPage(1, DataPage)
	slot, ok := p.InsertRecord([]byte("a"))
	require.True(t, ok)

	// Grow the record repeatedly until it no longer fits; this must fail
	// cleanly via HasSpace rather than wrap around and corrupt the buffer.
	payload := []byte("a")
	for i := 0; i < 16; i++ {
		payload = append(payload, payload...)
		if !p.UpdateRecord(slot, payload) {
			break
		}
	}
	assert.True(t, p.IsValid())
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	p := NewPage(3, IndexPage)
	_, _ = p.InsertRecord([]byte("payload"))
	blob := p.Serialize()

	got, err := Deserialize(blob)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.PageID())
	assert.Equal(t, IndexPage, got.PageType())
	data, ok := got.GetRecord(0)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestDeserializeRejectsWrongSize(t *testing.T) {
	_, err := Deserialize(make([]byte, 10))
	assert.Error(t, err)
}

func TestDeserializeRejectsBadChecksum(t *testing.T) {
	p := NewPage(1, DataPage)
	blob := p.Serialize()
	blob[0] ^= 0xFF // corrupt a header byte covered by the checksum
	_, err := Deserialize(blob)
	assert.Error(t, err)
}

func TestHasSpaceAccountsForNewSlot(t *testing.T) {
	p := NewPage(1, DataPage)
	free := p.FreeSpace()
	assert.True(t, p.HasSpace(free-4, true))
	assert.False(t, p.HasSpace(free-3, true))
	assert.True(t, p.HasSpace(free-2, false))
}
