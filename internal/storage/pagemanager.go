package storage

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/novadb/novadb/internal/bufferpool"
	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/pkg/util"
)

// PageManager allocates, reads, and writes fixed-size pages against a single
// backing file, delegating caching to a bufferpool.Pool.
type PageManager struct {
	file     *os.File
	freeMap  []bool // index 0 unused; true = free
	nextHint uint32
	pool     *bufferpool.Pool
	logger   *slog.Logger
}

// NewPageManager opens (or creates) path as the backing file and wires a
// buffer pool of the given capacity on top of it.
func NewPageManager(path string, bufferCapacity int, logger *slog.Logger) (*PageManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	pm := &PageManager{
		file:     f,
		freeMap:  make([]bool, 1024),
		nextHint: 1,
		logger:   logger,
	}
	for i := 1; i < len(pm.freeMap); i++ {
		pm.freeMap[i] = true
	}
	pm.pool = bufferpool.NewPool(bufferCapacity, pm.readFromDisk, pm.writeToDisk, logger)

	if err := pm.recoverFreeMapFromFileSize(); err != nil {
		return nil, err
	}
	return pm, nil
}

func (pm *PageManager) recoverFreeMapFromFileSize() error {
	info, err := pm.file.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat backing file: %w", err)
	}
	pages := info.Size() / PageSize
	for id := int64(1); id <= pages; id++ {
		pm.ensureCapacity(uint32(id))
		pm.freeMap[id] = false
		if uint32(id) >= pm.nextHint {
			pm.nextHint = uint32(id) + 1
		}
	}
	return nil
}

func (pm *PageManager) ensureCapacity(id uint32) {
	for uint32(len(pm.freeMap)) <= id {
		grown := make([]bool, len(pm.freeMap)*2)
		copy(grown, pm.freeMap)
		for i := len(pm.freeMap); i < len(grown); i++ {
			grown[i] = true
		}
		pm.freeMap = grown
	}
}

// Allocate reserves a fresh page id, creates an empty page of kind in the
// pool, and returns its id.
func (pm *PageManager) Allocate(kind PageType) (uint32, error) {
	id := pm.findFreePageID()
	pm.ensureCapacity(id)
	pm.freeMap[id] = false
	if id >= pm.nextHint {
		pm.nextHint = id + 1
	}
	page := NewPage(id, kind)
	if err := pm.pool.PutPage(page); err != nil {
		return 0, err
	}
	pm.logger.Debug("page allocated", "page", id, "kind", kind)
	return id, nil
}

func (pm *PageManager) findFreePageID() uint32 {
	for i := 1; i < len(pm.freeMap); i++ {
		if pm.freeMap[i] {
			return uint32(i)
		}
	}
	return uint32(len(pm.freeMap))
}

// Deallocate marks pid free and drops any cached copy without writing it
// back (its contents no longer matter).
func (pm *PageManager) Deallocate(pid uint32) {
	if pid == InvalidPageID || int(pid) >= len(pm.freeMap) {
		return
	}
	pm.freeMap[pid] = true
	pm.pool.Remove(pid)
}

// Read returns the page for pid, via the pool (faulting from disk on a
// miss).
func (pm *PageManager) Read(pid uint32) (*Page, error) {
	if pid == InvalidPageID {
		return nil, fmt.Errorf("storage: invalid page id 0")
	}
	return pm.pool.GetPage(pid)
}

// Write admits page into the pool as dirty and performs a pass-through
// write to disk.
func (pm *PageManager) Write(page *Page) error {
	if err := pm.pool.PutPage(page); err != nil {
		return err
	}
	return pm.writeToDisk(page)
}

// Unpin releases one reference on pid, marking it dirty if the caller
// mutated it. A page must be unpinned exactly once per Read/Allocate call
// once the caller is done touching it, or it becomes permanently
// ineligible for eviction.
func (pm *PageManager) Unpin(pid uint32, dirty bool) { pm.pool.Unpin(pid, dirty) }

// Flush forces a write-back of pid through the pool.
func (pm *PageManager) Flush(pid uint32) error { return pm.pool.FlushPage(pid) }

// FlushAll forces a write-back of every dirty page through the pool.
func (pm *PageManager) FlushAll() error { return pm.pool.FlushAll() }

// Exists reports whether pid is currently allocated.
func (pm *PageManager) Exists(pid uint32) bool {
	return pid != InvalidPageID && int(pid) < len(pm.freeMap) && !pm.freeMap[pid]
}

// Stats exposes the underlying buffer pool's cumulative counters.
func (pm *PageManager) Stats() bufferpool.Stats { return pm.pool.Stats() }

// Close flushes all dirty pages and closes the backing file. A close error
// on the underlying file is logged rather than returned: by this point the
// data is already durable via FlushAll, so callers have nothing actionable
// to do with it.
func (pm *PageManager) Close() error {
	if err := pm.FlushAll(); err != nil {
		return err
	}
	util.CloseFileFunc(pm.file)
	return nil
}

func (pm *PageManager) readFromDisk(pid uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	off := int64(pid-1) * PageSize
	n, err := pm.file.ReadAt(buf, off)
	if err != nil || n != PageSize {
		return nil, dberr.NewStorageError(dberr.PageCorrupt, "page %d: short read (%d bytes): %v", pid, n, err)
	}
	page, err := Deserialize(buf)
	if err != nil {
		return nil, dberr.NewStorageError(dberr.PageCorrupt, "page %d: %v", pid, err)
	}
	return page, nil
}

func (pm *PageManager) writeToDisk(page *Page) error {
	off := int64(page.PageID()-1) * PageSize
	_, err := pm.file.WriteAt(page.Serialize(), off)
	if err != nil {
		return dberr.NewStorageError(dberr.PageAllocationFailed, "page %d: write failed: %v", page.PageID(), err)
	}
	return nil
}
