package cache

import (
	"go.uber.org/zap"

	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/kverr"
)

// DefaultCacheSize is CACHESIZE from spec §4.2.
const DefaultCacheSize = 1024

// l1Size is the direct-mapped hot-path front the cache consults before
// touching the main LRU structure (spec §4.2: "a small direct-mapped
// L1 of 16 slots"). The array-of-slots-plus-ring-pointer shape mirrors
// the bucket arrays the corpus's own hand-rolled caches use (compare
// ecache2's fixed-size index arrays) rather than a generic container.
const l1Size = 16

// Cache is the shared-owner, write-back block cache (spec §4.2). It is
// the sole path by which any other component reads or writes a block;
// above it, the block.File is used only to allocate ids, sync and close.
type Cache struct {
	manager   *Manager
	file      *block.File
	capacity  int
	main      map[uint32]*cacheEntry
	ageClock  uint64
	l1        [l1Size]l1Slot
	l1Next    int
	log       *zap.Logger
	writeErr  error // sticky: set when a write-back fails (spec §7)
}

type cacheEntry struct {
	blk *block.Block
	age uint64
}

type l1Slot struct {
	id     uint32
	entry  *cacheEntry
	filled bool
}

// New creates a cache of the given capacity (0 uses DefaultCacheSize)
// backed by file and mediated by manager.
func New(file *block.File, manager *Manager, capacity int, log *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		manager:  manager,
		file:     file,
		capacity: capacity,
		main:     make(map[uint32]*cacheEntry, capacity),
		log:      log,
	}
}

// Len returns the number of blocks currently resident in the cache
// (spec §8 invariant: "at all times the cache holds <= CACHESIZE
// blocks").
func (c *Cache) Len() int { return len(c.main) }

// Err returns a sticky error recorded by a failed write-back during a
// prior eviction. Spec §7: "a failed write-back is logged and
// reported as IoError from the next operation that evicted the
// block; the store treats this as fatal." Callers should check this
// after any operation that may have forced an eviction.
func (c *Cache) Err() error { return c.writeErr }

func (c *Cache) l1Find(id uint32) *cacheEntry {
	for i := range c.l1 {
		if c.l1[i].filled && c.l1[i].id == id {
			return c.l1[i].entry
		}
	}
	return nil
}

func (c *Cache) l1Put(id uint32, e *cacheEntry) {
	c.l1[c.l1Next] = l1Slot{id: id, entry: e, filled: true}
	c.l1Next = (c.l1Next + 1) % l1Size
}

func (c *Cache) l1Invalidate(id uint32) {
	for i := range c.l1 {
		if c.l1[i].filled && c.l1[i].id == id {
			c.l1[i] = l1Slot{}
		}
	}
}

func (c *Cache) nextAge() uint64 {
	c.ageClock++
	return c.ageClock
}

// Get returns the block for id, reading through to disk on a miss.
func (c *Cache) Get(id uint32) (*block.Block, error) {
	if e := c.l1Find(id); e != nil {
		return e.blk, nil
	}
	if e, ok := c.main[id]; ok {
		e.age = c.nextAge()
		c.l1Put(id, e)
		return e.blk, nil
	}
	return c.load(id)
}

// load performs the cache-miss path: evict if full, acquire the block
// object from the manager, read it through from disk, and insert it
// under a fresh age.
func (c *Cache) load(id uint32) (*block.Block, error) {
	if len(c.main) >= c.capacity {
		if err := c.evictOldest(); err != nil {
			return nil, err
		}
	}
	blk, existed := c.manager.Acquire(id)
	if !existed {
		if err := c.file.Read(id, blk.Data); err != nil {
			c.manager.Release(id)
			return nil, kverr.Wrap(kverr.IoError, err, "cache read-through")
		}
	}
	e := &cacheEntry{blk: blk, age: c.nextAge()}
	c.main[id] = e
	c.l1Put(id, e)
	return blk, nil
}

// GetFresh returns a zeroed, cache-resident block for id without ever
// reading it from disk. id must be a block the caller just allocated
// (block.File.AllocID) and that holds no content worth reading back —
// the file may not even extend that far yet, so the normal read-through
// Get would only issue a disk read that comes back zero-filled. This
// is the insertion path Set exists for.
func (c *Cache) GetFresh(id uint32) (*block.Block, error) {
	if e := c.l1Find(id); e != nil {
		return e.blk, nil
	}
	if e, ok := c.main[id]; ok {
		e.age = c.nextAge()
		c.l1Put(id, e)
		return e.blk, nil
	}
	blk, _ := c.manager.Acquire(id)
	if err := c.Set(blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// Set installs blk into the cache under its own id, evicting the LRU
// entry first if the cache is full. Used when a caller has a freshly
// allocated block it wants the cache to own going forward, without a
// disk read.
func (c *Cache) Set(blk *block.Block) error {
	id := blk.ID
	if old, ok := c.main[id]; ok {
		old.blk = blk
		old.age = c.nextAge()
		c.l1Invalidate(id)
		c.l1Put(id, old)
		return nil
	}
	if len(c.main) >= c.capacity {
		if err := c.evictOldest(); err != nil {
			return err
		}
	}
	e := &cacheEntry{blk: blk, age: c.nextAge()}
	c.main[id] = e
	c.l1Put(id, e)
	return nil
}

// evictOldest removes the entry with the smallest age, writing it
// back first if dirty. Ages are unique (a monotonic counter), so
// there are never ties.
func (c *Cache) evictOldest() error {
	var oldestID uint32
	var oldestAge uint64
	found := false
	for id, e := range c.main {
		if !found || e.age < oldestAge {
			oldestID, oldestAge, found = id, e.age, true
		}
	}
	if !found {
		return nil
	}
	return c.evict(oldestID)
}

func (c *Cache) evict(id uint32) error {
	e, ok := c.main[id]
	if !ok {
		return nil
	}
	delete(c.main, id)
	c.l1Invalidate(id)
	var err error
	if e.blk.Dirty() && e.blk.Valid() {
		if werr := c.file.Write(e.blk.ID, e.blk.Data); werr != nil {
			err = kverr.Wrap(kverr.IoError, werr, "cache write-back")
			c.writeErr = err
			c.log.Error("block write-back failed", zap.Uint32("block_id", id), zap.Error(werr))
		}
	}
	c.manager.Release(id)
	return err
}

// Flush evicts every resident block, forcing write-back of every
// dirty one (spec §4.2: "flush()/close(): evict all"). It keeps going
// even if an individual write-back fails, returning the first error
// encountered so callers still drain the cache.
func (c *Cache) Flush() error {
	ids := make([]uint32, 0, len(c.main))
	for id := range c.main {
		ids = append(ids, id)
	}
	var first error
	for _, id := range ids {
		if err := c.evict(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}
