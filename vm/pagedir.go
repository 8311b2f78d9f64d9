package vm

import (
	"sync"
	"sync/atomic"
)

// PageDirectory is the per-context page-table abstraction the frame
// manager consults while selecting and evicting victims.
type PageDirectory interface {
	IsAccessed(upage VirtAddr) bool
	SetAccessed(upage VirtAddr, accessed bool)
	IsDirty(upage VirtAddr) bool
	ClearPage(upage VirtAddr)
}

// PageTableEntryFlag describes a flag that can be applied to a page table entry
type PageTableEntryFlag uintptr

const (
	PTEPresent PageTableEntryFlag = 1 << iota
	PTEWritable
	PTEUser
	PTEAccessed
	PTEDirty

	pteFlagMask = PageSize - 1
)

// PageTableEntry encodes a physical frame address and a set of flags in a
// single word. The word is updated atomically so simulated hardware
// accesses and the eviction scan can race safely.
type PageTableEntry struct {
	word atomic.Uintptr
}

// HasFlags returns true if this entry has all the input flags set
func (pte *PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return pte.word.Load()&uintptr(flags) == uintptr(flags)
}

// SetFlags sets the input flags on the entry
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	pte.word.Or(uintptr(flags))
}

// ClearFlags unsets the input flags from the entry
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	pte.word.And(^uintptr(flags))
}

// Writable reports whether the mapping allows writes
func (pte *PageTableEntry) Writable() bool {
	return pte.HasFlags(PTEWritable)
}

// Frame returns the physical frame this entry points to
func (pte *PageTableEntry) Frame() Frame {
	return Frame((pte.word.Load() &^ pteFlagMask) >> PageShift)
}

// setFrame points the entry at the given frame, keeping its flags
func (pte *PageTableEntry) setFrame(frame Frame) {
	for {
		old := pte.word.Load()
		if pte.word.CompareAndSwap(old, (old&pteFlagMask)|frame.Address()) {
			return
		}
	}
}

// PageTable maps page-aligned user addresses to page table entries
type PageTable struct {
	entries map[VirtAddr]*PageTableEntry
	mutex   sync.RWMutex
}

// NewPageTable creates an empty page table
func NewPageTable() *PageTable {
	return &PageTable{
		entries: make(map[VirtAddr]*PageTableEntry),
	}
}

// Map installs a present mapping from upage to frame and returns its entry.
// An existing mapping for upage is replaced.
func (pt *PageTable) Map(upage VirtAddr, frame Frame, writable bool) *PageTableEntry {
	pte := &PageTableEntry{}
	pte.setFrame(frame)
	flags := PTEPresent | PTEUser
	if writable {
		flags |= PTEWritable
	}
	pte.SetFlags(flags)

	pt.mutex.Lock()
	pt.entries[upage.PageBase()] = pte
	pt.mutex.Unlock()

	return pte
}

// Lookup returns the present entry for upage
func (pt *PageTable) Lookup(upage VirtAddr) (*PageTableEntry, bool) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	pte, exists := pt.entries[upage.PageBase()]
	if !exists || !pte.HasFlags(PTEPresent) {
		return nil, false
	}
	return pte, true
}

// Touch simulates a hardware access to upage. It sets the accessed bit,
// and the dirty bit for writes, and reports false when the access faults.
func (pt *PageTable) Touch(upage VirtAddr, write bool) bool {
	pte, ok := pt.Lookup(upage)
	if !ok {
		return false
	}
	if write && !pte.Writable() {
		return false
	}

	flags := PTEAccessed
	if write {
		flags |= PTEDirty
	}
	pte.SetFlags(flags)

	// The mapping may have been cleared between the lookup and the update.
	return pte.HasFlags(PTEPresent)
}

// IsAccessed reports whether upage was referenced since the bit was last cleared
func (pt *PageTable) IsAccessed(upage VirtAddr) bool {
	pte, ok := pt.Lookup(upage)
	return ok && pte.HasFlags(PTEAccessed)
}

// SetAccessed sets or clears the accessed bit of upage
func (pt *PageTable) SetAccessed(upage VirtAddr, accessed bool) {
	pte, ok := pt.Lookup(upage)
	if !ok {
		return
	}
	if accessed {
		pte.SetFlags(PTEAccessed)
	} else {
		pte.ClearFlags(PTEAccessed)
	}
}

// IsDirty reports whether upage was written since it was mapped
func (pt *PageTable) IsDirty(upage VirtAddr) bool {
	pte, ok := pt.Lookup(upage)
	return ok && pte.HasFlags(PTEDirty)
}

// SetDirty sets or clears the dirty bit of upage
func (pt *PageTable) SetDirty(upage VirtAddr, dirty bool) {
	pte, ok := pt.Lookup(upage)
	if !ok {
		return
	}
	if dirty {
		pte.SetFlags(PTEDirty)
	} else {
		pte.ClearFlags(PTEDirty)
	}
}

// ClearPage marks upage not present so later accesses fault.
// The entry's writable bit is left intact for readers still holding it.
func (pt *PageTable) ClearPage(upage VirtAddr) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	base := upage.PageBase()
	if pte, exists := pt.entries[base]; exists {
		pte.ClearFlags(PTEPresent | PTEAccessed | PTEDirty)
		delete(pt.entries, base)
	}
}

// Len returns the number of present mappings
func (pt *PageTable) Len() int {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	return len(pt.entries)
}
