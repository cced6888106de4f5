// Package storage implements fixed-size slotted pages and the page manager
// that reads/writes them from a single backing file.
package storage

import (
	"fmt"

	"github.com/novadb/novadb/internal/alias/bx"
)

const (
	PageSize       = 4096
	PageHeaderSize = 24
	PageDataSize   = PageSize - PageHeaderSize
	// InvalidPageID is the reserved, never-allocated page id.
	InvalidPageID uint32 = 0
)

// PageType distinguishes the three kinds of pages the engine allocates.
type PageType uint8

const (
	DataPage PageType = iota
	IndexPage
	MetaPage
)

// header layout (24 bytes): pageId(4) pageType(1) pad(1) slotCount(2)
// recordDataStart(2) freeSpaceSize(2) checksum(4) lsn(8)
const (
	offPageID          = 0
	offPageType        = 4
	offSlotCount       = 6
	offRecordDataStart = 8
	offFreeSpaceSize   = 10
	offChecksum        = 12
	offLSN             = 16
)

// Page is a fixed 4 KiB slotted page: a header, a slot directory growing up
// from the header boundary, and record payloads growing down from the end
// of the page. A slot value of zero marks a tombstone.
type Page struct {
	buf []byte // always len PageSize
}

// NewPage allocates a fresh, empty page of the given id and kind.
func NewPage(id uint32, kind PageType) *Page {
	p := &Page{buf: make([]byte, PageSize)}
	bx.PutU32At(p.buf, offPageID, id)
	p.buf[offPageType] = byte(kind)
	bx.PutU16At(p.buf, offSlotCount, 0)
	bx.PutU16At(p.buf, offRecordDataStart, PageSize)
	bx.PutU16At(p.buf, offFreeSpaceSize, PageDataSize)
	p.UpdateChecksum()
	return p
}

func (p *Page) PageID() uint32      { return bx.U32At(p.buf, offPageID) }
func (p *Page) PageType() PageType  { return PageType(p.buf[offPageType]) }
func (p *Page) SlotCount() uint16   { return bx.U16At(p.buf, offSlotCount) }
func (p *Page) recordDataStart() uint16 { return bx.U16At(p.buf, offRecordDataStart) }
func (p *Page) FreeSpace() int      { return int(bx.U16At(p.buf, offFreeSpaceSize)) }

func (p *Page) slotOffset(slot uint16) int { return PageHeaderSize + int(slot)*2 }

func (p *Page) slotValue(slot uint16) uint16 {
	return bx.U16At(p.buf, p.slotOffset(slot))
}

func (p *Page) setSlotValue(slot uint16, v uint16) {
	bx.PutU16At(p.buf, p.slotOffset(slot), v)
}

// HasSpace reports whether a record of recordSize payload bytes (plus its
// 2-byte length prefix) fits, accounting for a possible new slot entry.
func (p *Page) HasSpace(recordSize int, needsNewSlot bool) bool {
	need := recordSize + 2
	if needsNewSlot {
		need += 2
	}
	return p.FreeSpace() >= need
}

func (p *Page) findFreeSlot() (slot uint16, isNew bool) {
	count := p.SlotCount()
	for i := uint16(0); i < count; i++ {
		if p.slotValue(i) == 0 {
			return i, false
		}
	}
	return count, true
}

// InsertRecord stores record, returning its slot id, or ok=false if the page
// lacks space.
func (p *Page) InsertRecord(record []byte) (slot uint16, ok bool) {
	slotID, isNew := p.findFreeSlot()
	if !p.HasSpace(len(record), isNew) {
		return 0, false
	}
	newStart := p.recordDataStart() - uint16(2+len(record))
	bx.PutU16At(p.buf, int(newStart), uint16(len(record)))
	copy(p.buf[int(newStart)+2:], record)

	p.setSlotValue(slotID, newStart)
	if isNew {
		bx.PutU16At(p.buf, offSlotCount, slotID+1)
	}
	bx.PutU16At(p.buf, offRecordDataStart, newStart)

	dirEnd := p.slotOffset(p.SlotCount())
	free := int(newStart) - dirEnd
	bx.PutU16At(p.buf, offFreeSpaceSize, uint16(free))

	p.UpdateChecksum()
	return slotID, true
}

// GetRecord returns the bytes stored at slot, or ok=false if the slot is
// out of range or tombstoned.
func (p *Page) GetRecord(slot uint16) (data []byte, ok bool) {
	if slot >= p.SlotCount() {
		return nil, false
	}
	off := p.slotValue(slot)
	if off == 0 {
		return nil, false
	}
	length := bx.U16At(p.buf, int(off))
	start := int(off) + 2
	out := make([]byte, length)
	copy(out, p.buf[start:start+int(length)])
	return out, true
}

// DeleteRecord tombstones slot and compacts the payload region in place;
// slot identities of other records are preserved.
func (p *Page) DeleteRecord(slot uint16) bool {
	if slot >= p.SlotCount() {
		return false
	}
	if p.slotValue(slot) == 0 {
		return false
	}
	p.setSlotValue(slot, 0)
	p.compact()
	p.UpdateChecksum()
	return true
}

// UpdateRecord replaces the bytes at slot; if the new payload does not fit,
// the page is left unchanged and ok is false (the caller must relocate).
func (p *Page) UpdateRecord(slot uint16, record []byte) (ok bool) {
	if slot >= p.SlotCount() || p.slotValue(slot) == 0 {
		return false
	}
	old, _ := p.GetRecord(slot)
	p.setSlotValue(slot, 0)
	p.compact()
	if !p.HasSpace(len(record), false) {
		// doesn't fit; restore the old record at its old slot via compact
		p.reinsertAt(slot, old)
		p.UpdateChecksum()
		return false
	}
	newStart := p.recordDataStart() - uint16(2+len(record))
	dirEnd := p.slotOffset(p.SlotCount())
	bx.PutU16At(p.buf, int(newStart), uint16(len(record)))
	copy(p.buf[int(newStart)+2:], record)
	p.setSlotValue(slot, newStart)
	bx.PutU16At(p.buf, offRecordDataStart, newStart)
	free := int(newStart) - dirEnd
	bx.PutU16At(p.buf, offFreeSpaceSize, uint16(free))
	p.UpdateChecksum()
	return true
}

// reinsertAt places record directly at the given existing slot id, growing
// the slot directory if needed, without changing other slots.
func (p *Page) reinsertAt(slot uint16, record []byte) {
	newStart := p.recordDataStart() - uint16(2+len(record))
	bx.PutU16At(p.buf, int(newStart), uint16(len(record)))
	copy(p.buf[int(newStart)+2:], record)
	p.setSlotValue(slot, newStart)
	if slot >= p.SlotCount() {
		bx.PutU16At(p.buf, offSlotCount, slot+1)
	}
	bx.PutU16At(p.buf, offRecordDataStart, newStart)
	dirEnd := p.slotOffset(p.SlotCount())
	free := int(newStart) - dirEnd
	bx.PutU16At(p.buf, offFreeSpaceSize, uint16(free))
}

// compact rebuilds the payload region so there is no gap between consumed
// bytes, preserving each live record's slot id.
func (p *Page) compact() {
	count := p.SlotCount()
	type live struct {
		slot uint16
		data []byte
	}
	var records []live
	for i := uint16(0); i < count; i++ {
		if d, ok := p.GetRecord(i); ok {
			records = append(records, live{i, d})
		}
	}
	bx.PutU16At(p.buf, offRecordDataStart, PageSize)
	for _, r := range records {
		newStart := p.recordDataStart() - uint16(2+len(r.data))
		bx.PutU16At(p.buf, int(newStart), uint16(len(r.data)))
		copy(p.buf[int(newStart)+2:], r.data)
		p.setSlotValue(r.slot, newStart)
		bx.PutU16At(p.buf, offRecordDataStart, newStart)
	}
	dirEnd := p.slotOffset(count)
	free := int(p.recordDataStart()) - dirEnd
	bx.PutU16At(p.buf, offFreeSpaceSize, uint16(free))
}

// UpdateChecksum recomputes and stores the page checksum over every byte
// except the checksum field itself.
func (p *Page) UpdateChecksum() {
	bx.PutU32At(p.buf, offChecksum, p.calculateChecksum())
}

func (p *Page) calculateChecksum() uint32 {
	var sum uint32
	for i := 0; i < offChecksum; i++ {
		sum += uint32(p.buf[i])
	}
	for i := offChecksum + 4; i < PageSize; i++ {
		sum += uint32(p.buf[i])
	}
	return sum
}

// IsValid reports whether the stored checksum matches the page contents.
func (p *Page) IsValid() bool {
	return p.calculateChecksum() == bx.U32At(p.buf, offChecksum)
}

// Serialize returns the page's fixed-size on-disk representation.
func (p *Page) Serialize() []byte {
	out := make([]byte, PageSize)
	copy(out, p.buf)
	return out
}

// Deserialize rebuilds a Page from a PageSize-length byte block, returning
// an error if the block is malformed or fails its checksum.
func Deserialize(data []byte) (*Page, error) {
	if len(data) != PageSize {
		return nil, fmt.Errorf("storage: page block must be %d bytes, got %d", PageSize, len(data))
	}
	p := &Page{buf: make([]byte, PageSize)}
	copy(p.buf, data)
	if !p.IsValid() {
		return nil, fmt.Errorf("storage: page %d failed checksum validation", p.PageID())
	}
	return p, nil
}
