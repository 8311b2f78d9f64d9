package vm

import (
	"math"
	"sync"
)

// SwapSlot indexes a slot on the swap device
type SwapSlot uint32

// NoSwapSlot marks an entry that holds no swap slot
const NoSwapSlot = SwapSlot(math.MaxUint32)

// SupplementalTable is the per-context table of out-of-band page metadata
type SupplementalTable interface {
	Lookup(upage VirtAddr) *SupplementalEntry
	Insert(entry *SupplementalEntry) bool
}

// SupplementalEntry records where a virtual page lives when it is not in a
// frame. InSwap and IsLoaded are never true at the same time.
type SupplementalEntry struct {
	upage    VirtAddr
	isFile   bool
	inSwap   bool
	isLoaded bool
	swapSlot SwapSlot
	writable bool
	mutex    sync.Mutex
}

// SupplementalState is a consistent copy of an entry's fields
type SupplementalState struct {
	UserPage VirtAddr
	IsFile   bool
	InSwap   bool
	IsLoaded bool
	SwapSlot SwapSlot
	Writable bool
}

// NewSupplementalEntry creates an entry for a page that is neither loaded
// nor swapped
func NewSupplementalEntry(upage VirtAddr, isFile bool) *SupplementalEntry {
	return &SupplementalEntry{
		upage:    upage.PageBase(),
		isFile:   isFile,
		swapSlot: NoSwapSlot,
	}
}

// UserPage returns the virtual page this entry describes
func (e *SupplementalEntry) UserPage() VirtAddr {
	return e.upage
}

// IsFile reports whether the page is backed by a file
func (e *SupplementalEntry) IsFile() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.isFile
}

// State returns a snapshot of the entry
func (e *SupplementalEntry) State() SupplementalState {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return SupplementalState{
		UserPage: e.upage,
		IsFile:   e.isFile,
		InSwap:   e.inSwap,
		IsLoaded: e.isLoaded,
		SwapSlot: e.swapSlot,
		Writable: e.writable,
	}
}

// MarkSwapped records that the page was written to slot and is no longer
// in a frame
func (e *SupplementalEntry) MarkSwapped(slot SwapSlot, writable bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.inSwap = true
	e.isLoaded = false
	e.swapSlot = slot
	e.writable = writable
}

// MarkEvicted records that the page left its frame without being written
// out. Swap state is left as it was.
func (e *SupplementalEntry) MarkEvicted(writable bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.isLoaded = false
	e.writable = writable
}

// MarkLoaded records that the page is back in a frame and returns the swap
// slot it was read from, if any, so the caller can free it
func (e *SupplementalEntry) MarkLoaded() (SwapSlot, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	slot, wasSwapped := e.swapSlot, e.inSwap
	e.inSwap = false
	e.isLoaded = true
	e.swapSlot = NoSwapSlot
	return slot, wasSwapped
}

// SupplPageTable is a mutex-guarded SupplementalTable
type SupplPageTable struct {
	entries map[VirtAddr]*SupplementalEntry
	mutex   sync.RWMutex
}

// NewSupplPageTable creates an empty supplemental page table
func NewSupplPageTable() *SupplPageTable {
	return &SupplPageTable{
		entries: make(map[VirtAddr]*SupplementalEntry),
	}
}

// Lookup returns the entry for upage or nil
func (st *SupplPageTable) Lookup(upage VirtAddr) *SupplementalEntry {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.entries[upage.PageBase()]
}

// Insert adds entry. It fails if the page already has an entry.
func (st *SupplPageTable) Insert(entry *SupplementalEntry) bool {
	if entry == nil {
		return false
	}

	st.mutex.Lock()
	defer st.mutex.Unlock()

	if _, exists := st.entries[entry.upage]; exists {
		return false
	}
	st.entries[entry.upage] = entry
	return true
}

// Remove deletes the entry for upage
func (st *SupplPageTable) Remove(upage VirtAddr) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	delete(st.entries, upage.PageBase())
}

// Len returns the number of entries
func (st *SupplPageTable) Len() int {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return len(st.entries)
}
