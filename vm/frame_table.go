package vm

import (
	"container/list"
	"sync"
)

// frameEntry is one in-use physical frame. An entry with a nil pte is
// mid-allocation and never a victim.
type frameEntry struct {
	owner      ContextID
	frame      Frame
	pte        *PageTableEntry
	upage      VirtAddr
	generation uint64
}

// FrameInfo is a copy of a frame entry taken under the table lock
type FrameInfo struct {
	Owner    ContextID
	Frame    Frame
	PTE      *PageTableEntry
	UserPage VirtAddr

	// Generation changes every time the frame is handed to a new owner.
	// Compare it after a fresh Lookup to detect that a frame was reclaimed.
	Generation uint64
}

// Bound reports whether the frame has been attached to a page
func (fi FrameInfo) Bound() bool {
	return fi.PTE != nil
}

// FrameTable tracks every frame leased to an owner, ordered so that
// frames surviving an eviction scan drift to the back
type FrameTable struct {
	frames     *list.List // of *frameEntry
	index      map[Frame]*list.Element
	generation uint64
	mutex      sync.Mutex
}

// NewFrameTable creates an empty frame table
func NewFrameTable() *FrameTable {
	return &FrameTable{
		frames: list.New(),
		index:  make(map[Frame]*list.Element),
	}
}

// Register appends an unbound entry for frame owned by owner.
// It fails for an invalid frame or one that is already registered.
func (ft *FrameTable) Register(frame Frame, owner ContextID) bool {
	if !frame.Valid() {
		return false
	}

	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	if _, exists := ft.index[frame]; exists {
		return false
	}

	ft.generation++
	entry := &frameEntry{
		owner:      owner,
		frame:      frame,
		generation: ft.generation,
	}
	ft.index[frame] = ft.frames.PushBack(entry)
	return true
}

// Unregister removes the entry for frame. It reports false if the frame
// was not registered.
func (ft *FrameTable) Unregister(frame Frame) bool {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	elem, exists := ft.index[frame]
	if !exists {
		return false
	}
	ft.frames.Remove(elem)
	delete(ft.index, frame)
	return true
}

// Lookup returns a snapshot of the entry for frame
func (ft *FrameTable) Lookup(frame Frame) (FrameInfo, bool) {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	elem, exists := ft.index[frame]
	if !exists {
		return FrameInfo{}, false
	}
	return elem.Value.(*frameEntry).info(), true
}

// Bind attaches frame to a page table entry and virtual page. It is a
// no-op returning false when the frame is not registered.
func (ft *FrameTable) Bind(frame Frame, pte *PageTableEntry, upage VirtAddr) bool {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	elem, exists := ft.index[frame]
	if !exists {
		return false
	}
	entry := elem.Value.(*frameEntry)
	entry.pte = pte
	entry.upage = upage.PageBase()
	return true
}

// Len returns the number of registered frames
func (ft *FrameTable) Len() int {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()
	return ft.frames.Len()
}

// Snapshot returns every entry in table order
func (ft *FrameTable) Snapshot() []FrameInfo {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	infos := make([]FrameInfo, 0, ft.frames.Len())
	for elem := ft.frames.Front(); elem != nil; elem = elem.Next() {
		infos = append(infos, elem.Value.(*frameEntry).info())
	}
	return infos
}

// info returns a snapshot of an entry that may be held outside the lock
func (ft *FrameTable) info(entry *frameEntry) FrameInfo {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()
	return entry.info()
}

// reassign hands a victim's frame to a new owner and clears its binding.
// It reports false if the entry left the table in the meantime.
func (ft *FrameTable) reassign(entry *frameEntry, owner ContextID) (Frame, bool) {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	elem, exists := ft.index[entry.frame]
	if !exists || elem.Value.(*frameEntry) != entry {
		return InvalidFrame, false
	}

	ft.generation++
	entry.owner = owner
	entry.pte = nil
	entry.upage = 0
	entry.generation = ft.generation
	return entry.frame, true
}

func (e *frameEntry) info() FrameInfo {
	return FrameInfo{
		Owner:      e.owner,
		Frame:      e.frame,
		PTE:        e.pte,
		UserPage:   e.upage,
		Generation: e.generation,
	}
}
