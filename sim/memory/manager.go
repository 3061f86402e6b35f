// Package memory implements demand paging over a fixed pool of physical frames.
//
// A Manager owns the frame table, one page table per registered process and a
// simulated BackingStore. Pages are loaded on first touch; when no frame is
// free the globally oldest resident page (smallest load stamp across every
// process) is written back and its frame reused.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownProcess is returned for a PID that was never registered.
	ErrUnknownProcess = errors.New("unknown process")
	// ErrAlreadyRegistered is returned when a PID is registered twice.
	ErrAlreadyRegistered = errors.New("process already registered")
	// ErrNameInUse is returned when a live process already owns the name.
	ErrNameInUse = errors.New("process name in use")
	// ErrPageOutOfRange is returned for a page beyond the process footprint.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrDoubleFree is returned when a process's memory is released twice.
	ErrDoubleFree = errors.New("process memory already freed")
)

// Frame is one unit of physical memory.
type Frame struct {
	Number   int
	Occupied bool
	PID      int   // owner; meaningful only when Occupied
	Page     int   // resident page number; meaningful only when Occupied
	LoadTime int64 // FIFO age stamp
	Dirty    bool
}

// PageTableEntry maps one virtual page of a process.
// Valid iff the page is resident in Frame.
type PageTableEntry struct {
	Frame int // -1 when not resident
	Valid bool
	Dirty bool
}

type pageTable struct {
	name    string
	memSize int
	entries []PageTableEntry
}

// Access describes the outcome of a page access.
type Access struct {
	Page        int
	Frame       int
	Fault       bool // page was not resident and had to be loaded
	SwappedIn   bool // the loaded page came back from the backing store
	Evicted     bool // a victim page was written back to make room
	EvictedPID  int
	EvictedPage int
}

// Stats is a point-in-time view of the memory manager counters.
type Stats struct {
	TotalMemory     int
	UsedMemory      int
	FreeMemory      int
	FrameSize       int
	TotalFrames     int
	UsedFrames      int
	PageFaults      int64
	PageHits        int64
	PagesPagedIn    int64 // faults served from the backing store
	PagesPagedOut   int64
	ResidencyHits   int64
	ResidencyMisses int64
}

// Manager is the demand-paging memory manager. Safe for concurrent use:
// validity checks run under a shared lock, fault handling under an
// exclusive one, so two callers can never pick the same victim frame.
type Manager struct {
	totalMemory int
	frameSize   int

	mu      sync.RWMutex
	frames  []Frame
	tables  map[int]*pageTable
	freed   map[int]bool
	loadSeq int64
	faults  int64

	hits      atomic.Int64
	store     *BackingStore
	residency *residencyCache
}

// NewManager creates a manager with totalMemory/frameSize frames.
// Panics if the sizes are not positive or totalMemory is not a multiple of frameSize.
func NewManager(totalMemory, frameSize int) *Manager {
	if totalMemory <= 0 || frameSize <= 0 {
		panic(fmt.Sprintf("memory.NewManager: sizes must be positive, got total=%d frame=%d", totalMemory, frameSize))
	}
	if totalMemory%frameSize != 0 {
		panic(fmt.Sprintf("memory.NewManager: total memory %d is not a multiple of frame size %d", totalMemory, frameSize))
	}
	numFrames := totalMemory / frameSize
	m := &Manager{
		totalMemory: totalMemory,
		frameSize:   frameSize,
		frames:      make([]Frame, numFrames),
		tables:      make(map[int]*pageTable),
		freed:       make(map[int]bool),
		store:       NewBackingStore(),
		residency:   newResidencyCache(residencySets, residencyWays),
	}
	for i := range m.frames {
		m.frames[i] = Frame{Number: i, PID: -1, Page: -1}
	}
	return m
}

// FrameSize returns the size of one frame in bytes.
func (m *Manager) FrameSize() int { return m.frameSize }

// TotalFrames returns the number of physical frames.
func (m *Manager) TotalFrames() int { return len(m.frames) }

// PagesFor returns ceil(memSize / frameSize).
func (m *Manager) PagesFor(memSize int) int {
	return (memSize + m.frameSize - 1) / m.frameSize
}

// BackingStore exposes the simulated secondary storage.
func (m *Manager) BackingStore() *BackingStore { return m.store }

// Register creates an empty page table for the process.
// No frames are allocated until the first access.
func (m *Manager) Register(pid int, name string, memSize int) error {
	if memSize <= 0 {
		return fmt.Errorf("register pid %d: memory size must be positive, got %d", pid, memSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[pid]; ok || m.freed[pid] {
		return fmt.Errorf("register pid %d: %w", pid, ErrAlreadyRegistered)
	}
	for other, pt := range m.tables {
		if pt.name == name {
			return fmt.Errorf("register pid %d: %q held by pid %d: %w", pid, name, other, ErrNameInUse)
		}
	}
	entries := make([]PageTableEntry, m.PagesFor(memSize))
	for i := range entries {
		entries[i].Frame = -1
	}
	m.tables[pid] = &pageTable{name: name, memSize: memSize, entries: entries}
	return nil
}

// AccessPage touches a page of the process, faulting it in if needed.
func (m *Manager) AccessPage(pid, page int) (Access, error) {
	return m.access(pid, page, false)
}

// AccessAddress touches the page containing the byte address.
// Writes mark the page dirty.
func (m *Manager) AccessAddress(pid, addr int, write bool) (Access, error) {
	if addr < 0 {
		return Access{}, fmt.Errorf("access pid %d address %d: %w", pid, addr, ErrPageOutOfRange)
	}
	return m.access(pid, addr/m.frameSize, write)
}

func (m *Manager) access(pid, page int, write bool) (Access, error) {
	if !write {
		if frame, ok := m.residency.lookup(pid, page); ok {
			m.hits.Add(1)
			return Access{Page: page, Frame: frame}, nil
		}

		m.mu.RLock()
		pt, err := m.tableLocked(pid, page)
		if err != nil {
			m.mu.RUnlock()
			return Access{}, err
		}
		if e := pt.entries[page]; e.Valid {
			m.residency.insert(pid, page, e.Frame)
			m.mu.RUnlock()
			m.hits.Add(1)
			return Access{Page: page, Frame: e.Frame}, nil
		}
		m.mu.RUnlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pt, err := m.tableLocked(pid, page)
	if err != nil {
		return Access{}, err
	}
	acc := Access{Page: page}
	if e := pt.entries[page]; e.Valid {
		// loaded by another caller between the two locks
		m.hits.Add(1)
		acc.Frame = e.Frame
	} else {
		acc = m.handleFaultLocked(pid, page, pt)
	}
	if write {
		pt.entries[page].Dirty = true
		m.frames[acc.Frame].Dirty = true
	}
	return acc, nil
}

func (m *Manager) tableLocked(pid, page int) (*pageTable, error) {
	pt, ok := m.tables[pid]
	if !ok {
		if m.freed[pid] {
			return nil, fmt.Errorf("access pid %d: %w", pid, ErrDoubleFree)
		}
		return nil, fmt.Errorf("access pid %d: %w", pid, ErrUnknownProcess)
	}
	if page < 0 || page >= len(pt.entries) {
		return nil, fmt.Errorf("access pid %d page %d of %d: %w", pid, page, len(pt.entries), ErrPageOutOfRange)
	}
	return pt, nil
}

// handleFaultLocked loads the page into a free or victim frame. Caller holds mu.
func (m *Manager) handleFaultLocked(pid, page int, pt *pageTable) Access {
	m.faults++
	acc := Access{Page: page, Fault: true}

	frame := m.findFreeFrameLocked()
	if frame < 0 {
		frame = m.selectVictimLocked()
		victim := m.frames[frame]
		acc.Evicted = true
		acc.EvictedPID = victim.PID
		acc.EvictedPage = victim.Page
		m.evictLocked(frame)
	}

	acc.SwappedIn = m.store.Load(pt.name, page)
	m.loadSeq++
	m.frames[frame] = Frame{
		Number:   frame,
		Occupied: true,
		PID:      pid,
		Page:     page,
		LoadTime: m.loadSeq,
	}
	pt.entries[page] = PageTableEntry{Frame: frame, Valid: true}
	acc.Frame = frame

	logrus.Debugf("[memory] pid %d page %d -> frame %d (evicted=%v)", pid, page, frame, acc.Evicted)
	return acc
}

// findFreeFrameLocked returns the lowest unoccupied frame, or -1.
func (m *Manager) findFreeFrameLocked() int {
	for i := range m.frames {
		if !m.frames[i].Occupied {
			return i
		}
	}
	return -1
}

// selectVictimLocked returns the occupied frame with the smallest load stamp
// across all processes. Ties go to the lower frame number.
func (m *Manager) selectVictimLocked() int {
	victim := -1
	for i := range m.frames {
		f := &m.frames[i]
		if !f.Occupied {
			continue
		}
		if victim < 0 || f.LoadTime < m.frames[victim].LoadTime {
			victim = i
		}
	}
	return victim
}

// evictLocked writes the frame's page to the backing store and frees the frame.
func (m *Manager) evictLocked(frame int) {
	f := m.frames[frame]
	if !f.Occupied {
		return
	}
	m.residency.invalidate(f.PID, f.Page)
	if owner, ok := m.tables[f.PID]; ok {
		m.store.Evict(owner.name, f.Page)
		owner.entries[f.Page] = PageTableEntry{Frame: -1}
	}
	m.frames[frame] = Frame{Number: frame, PID: -1, Page: -1}
}

// Free releases every frame owned by the process, removes its page table and
// purges its backing-store records. Must be called exactly once per process;
// a second call returns ErrDoubleFree.
func (m *Manager) Free(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, ok := m.tables[pid]
	if !ok {
		if m.freed[pid] {
			return fmt.Errorf("free pid %d: %w", pid, ErrDoubleFree)
		}
		return fmt.Errorf("free pid %d: %w", pid, ErrUnknownProcess)
	}
	released := 0
	for i := range m.frames {
		f := &m.frames[i]
		if f.Occupied && f.PID == pid {
			m.residency.invalidate(pid, f.Page)
			*f = Frame{Number: i, PID: -1, Page: -1}
			released++
		}
	}
	purged := m.store.Purge(pt.name)
	delete(m.tables, pid)
	m.freed[pid] = true

	logrus.Debugf("[memory] freed pid %d (%s): %d frames, %d backing records", pid, pt.name, released, purged)
	return nil
}

// FreeFrames returns the number of unoccupied frames.
func (m *Manager) FreeFrames() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.frames) - m.usedFramesLocked()
}

func (m *Manager) usedFramesLocked() int {
	used := 0
	for i := range m.frames {
		if m.frames[i].Occupied {
			used++
		}
	}
	return used
}

// ProcessUsage returns the bytes of physical memory currently held by the process.
func (m *Manager) ProcessUsage(pid int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for i := range m.frames {
		if m.frames[i].Occupied && m.frames[i].PID == pid {
			n++
		}
	}
	return n * m.frameSize
}

// Frames returns a copy of the frame table.
func (m *Manager) Frames() []Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// PageTable returns a copy of the process's page table.
func (m *Manager) PageTable(pid int) ([]PageTableEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.tables[pid]
	if !ok {
		return nil, false
	}
	out := make([]PageTableEntry, len(pt.entries))
	copy(out, pt.entries)
	return out, true
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	used := m.usedFramesLocked()
	faults := m.faults
	m.mu.RUnlock()

	in, out := m.store.Counters()
	rHits, rMisses := m.residency.counters()
	return Stats{
		TotalMemory:     m.totalMemory,
		UsedMemory:      used * m.frameSize,
		FreeMemory:      m.totalMemory - used*m.frameSize,
		FrameSize:       m.frameSize,
		TotalFrames:     len(m.frames),
		UsedFrames:      used,
		PageFaults:      faults,
		PageHits:        m.hits.Load(),
		PagesPagedIn:    in,
		PagesPagedOut:   out,
		ResidencyHits:   rHits,
		ResidencyMisses: rMisses,
	}
}
