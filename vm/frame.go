package vm

import (
	"math"
)

const (
	// PageShift is log2 of the frame size
	PageShift = 12
	// PageSize is the size of a physical frame and of a virtual page in bytes
	PageSize = 1 << PageShift
)

// Frame identifies a physical frame by its index in the physical pool.
// It is deliberately not a pointer: the pool maps identifiers to storage.
type Frame uint32

// InvalidFrame is returned when no frame could be provided
const InvalidFrame = Frame(math.MaxUint32)

// Valid returns true if this is a valid frame
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of the frame
func (f Frame) Address() uintptr {
	return uintptr(f) << PageShift
}

// VirtAddr is a user virtual address
type VirtAddr uintptr

// PageBase rounds the address down to its page boundary
func (va VirtAddr) PageBase() VirtAddr {
	return va &^ (PageSize - 1)
}

// ContextID identifies an execution context (a thread owning frames)
type ContextID uint32

// AllocFlags select the pool and fill behavior of a frame allocation
type AllocFlags uint8

const (
	// AllocUser requests a frame from the user pool
	AllocUser AllocFlags = 1 << iota
	// AllocZero requests a zero-filled frame
	AllocZero
)

// Has reports whether all of the given flags are set
func (f AllocFlags) Has(flags AllocFlags) bool {
	return f&flags == flags
}
