package memory

import (
	"sync"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

const (
	residencySets      = 16
	residencyWays      = 4
	residencyBlockSize = 64
)

// residencyCache is a small set-associative cache of (pid, page) pairs known
// to be resident, with the frame each one occupies. A hit lets the access
// path skip the page-table lock entirely. It holds no page data and performs
// no translation; the Manager invalidates entries under its write lock
// before a frame changes owner.
type residencyCache struct {
	mu        sync.Mutex
	directory *akitacache.DirectoryImpl
	frames    []int // indexed by SetID*ways + WayID
	ways      int
	hits      int64
	misses    int64
}

func newResidencyCache(numSets, ways int) *residencyCache {
	return &residencyCache{
		directory: akitacache.NewDirectory(
			numSets,
			ways,
			residencyBlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		frames: make([]int, numSets*ways),
		ways:   ways,
	}
}

// residencyAddr packs a (pid, page) pair into a block-aligned tag.
func residencyAddr(pid, page int) uint64 {
	return (uint64(pid)<<24 | uint64(page)) * residencyBlockSize
}

func (rc *residencyCache) blockIndex(block *akitacache.Block) int {
	return block.SetID*rc.ways + block.WayID
}

// lookup returns the cached frame for the page, if any.
func (rc *residencyCache) lookup(pid, page int) (int, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	block := rc.directory.Lookup(0, residencyAddr(pid, page))
	if block == nil || !block.IsValid {
		rc.misses++
		return -1, false
	}
	rc.hits++
	rc.directory.Visit(block)
	return rc.frames[rc.blockIndex(block)], true
}

// insert records that the page is resident in frame.
func (rc *residencyCache) insert(pid, page, frame int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	addr := residencyAddr(pid, page)
	block := rc.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		block = rc.directory.FindVictim(addr)
		if block == nil {
			return
		}
		block.Tag = addr
		block.IsValid = true
		block.IsDirty = false
	}
	rc.frames[rc.blockIndex(block)] = frame
	rc.directory.Visit(block)
}

// invalidate drops the entry for the page, if cached.
func (rc *residencyCache) invalidate(pid, page int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	block := rc.directory.Lookup(0, residencyAddr(pid, page))
	if block != nil && block.IsValid {
		block.IsValid = false
	}
}

func (rc *residencyCache) counters() (hits, misses int64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.hits, rc.misses
}
