// Package bufferpool implements a fixed-capacity page cache with strict
// least-recently-used eviction and pin-count protection.
package bufferpool

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/storage"
)

// DefaultCapacity is the frame count used when a caller does not configure one.
const DefaultCapacity = 128

// Frame is one cached page plus its pin/dirty bookkeeping.
type Frame struct {
	Page    *storage.Page
	PageID  uint32
	Dirty   bool
	PinCount int
}

// Stats tracks cumulative buffer pool activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Loader materializes a page on a buffer-pool miss (typically a PageManager
// reading it from disk).
type Loader func(pageID uint32) (*storage.Page, error)

// WriteBack persists a dirty page (typically a PageManager writing it to
// disk).
type WriteBack func(*storage.Page) error

// Pool is a mutex-guarded, fixed-capacity LRU buffer pool. Its invariant is
// that (frame table, LRU list, counters) always agree: no pinned frame ever
// appears evictable, and eviction always picks the least-recently-used
// unpinned frame.
type Pool struct {
	mu        sync.Mutex
	capacity  int
	frames    map[uint32]*Frame
	lru       *list.List // front = least recent, back = most recent
	elems     map[uint32]*list.Element
	stats     Stats
	load      Loader
	writeBack WriteBack
	logger    *slog.Logger
}

// NewPool constructs a Pool with the given capacity; load is invoked on a
// cache miss to materialize the page (e.g. from disk via PageManager), and
// writeBack is invoked to persist a dirty victim before it is evicted.
func NewPool(capacity int, load Loader, writeBack WriteBack, logger *slog.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		capacity:  capacity,
		frames:    make(map[uint32]*Frame, capacity),
		lru:       list.New(),
		elems:     make(map[uint32]*list.Element, capacity),
		load:      load,
		writeBack: writeBack,
		logger:    logger,
	}
}

// GetPage returns the pinned page for pageID, loading it on a miss and
// evicting a victim if the pool is full.
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[pageID]; ok {
		p.stats.Hits++
		f.PinCount++
		p.moveToFrontLocked(pageID)
		return f.Page, nil
	}

	p.stats.Misses++
	if len(p.frames) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	page, err := p.load(pageID)
	if err != nil {
		return nil, err
	}
	f := &Frame{Page: page, PageID: pageID, PinCount: 1}
	p.frames[pageID] = f
	p.addToFrontLocked(pageID)
	p.logger.Debug("bufferpool miss", "page", pageID)
	return page, nil
}

// PutPage admits or refreshes an already-constructed page (e.g. one just
// allocated), pinning it and marking it dirty.
func (p *Pool) PutPage(page *storage.Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageID := page.PageID()
	if f, ok := p.frames[pageID]; ok {
		f.Page = page
		f.Dirty = true
		f.PinCount++
		p.moveToFrontLocked(pageID)
		return nil
	}
	if len(p.frames) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return err
		}
	}
	p.frames[pageID] = &Frame{Page: page, PageID: pageID, Dirty: true, PinCount: 1}
	p.addToFrontLocked(pageID)
	return nil
}

// Pin increments a frame's pin count, protecting it from eviction.
func (p *Pool) Pin(pageID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok {
		return false
	}
	f.PinCount++
	p.moveToFrontLocked(pageID)
	return true
}

// Unpin decrements a frame's pin count; dirty marks it for write-back.
func (p *Pool) Unpin(pageID uint32, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok {
		return false
	}
	if dirty {
		f.Dirty = true
	}
	if f.PinCount > 0 {
		f.PinCount--
	}
	return true
}

// MarkDirty flags a cached frame as needing write-back without changing its
// pin count.
func (p *Pool) MarkDirty(pageID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[pageID]; ok {
		f.Dirty = true
	}
}

// FlushPage writes a single frame back if dirty.
func (p *Pool) FlushPage(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageID]
	if !ok || !f.Dirty {
		return nil
	}
	if err := p.writeBack(f.Page); err != nil {
		return err
	}
	f.Dirty = false
	return nil
}

// FlushAll writes back every dirty frame.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.Dirty {
			if err := p.writeBack(f.Page); err != nil {
				return err
			}
			f.Dirty = false
		}
	}
	return nil
}

// IsCached reports whether pageID currently has a frame.
func (p *Pool) IsCached(pageID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.frames[pageID]
	return ok
}

// Remove drops pageID from the pool without writing it back; used after a
// page has been deallocated.
func (p *Pool) Remove(pageID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(pageID)
}

// Stats returns a snapshot of cumulative counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// evictLocked finds the least-recently-used unpinned frame, writes it back
// if dirty, and removes it. Caller must hold p.mu.
func (p *Pool) evictLocked() error {
	for e := p.lru.Front(); e != nil; e = e.Next() {
		pid := e.Value.(uint32)
		f := p.frames[pid]
		if f.PinCount > 0 {
			continue
		}
		if f.Dirty {
			if err := p.writeBack(f.Page); err != nil {
				return err
			}
		}
		p.lru.Remove(e)
		delete(p.elems, pid)
		delete(p.frames, pid)
		p.stats.Evictions++
		p.logger.Debug("bufferpool eviction", "page", pid)
		return nil
	}
	return dberr.NewStorageError(dberr.BufferPoolExhausted, "no unpinned frame to evict")
}

func (p *Pool) removeLocked(pageID uint32) {
	if e, ok := p.elems[pageID]; ok {
		p.lru.Remove(e)
		delete(p.elems, pageID)
	}
	delete(p.frames, pageID)
}

func (p *Pool) moveToFrontLocked(pageID uint32) {
	if e, ok := p.elems[pageID]; ok {
		p.lru.MoveToBack(e)
		return
	}
	p.addToFrontLocked(pageID)
}

// addToFrontLocked marks pageID as most-recently-used. The list's Back is
// the most-recent end; Front is scanned first by evictLocked as the
// least-recently-used end.
func (p *Pool) addToFrontLocked(pageID uint32) {
	e := p.lru.PushBack(pageID)
	p.elems[pageID] = e
}
