package vm

import (
	"fmt"
	"os"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// SwapWriter persists evicted pages
type SwapWriter interface {
	WriteOut(page []byte) (SwapSlot, error)
}

// SwapDevice is a file of fixed-size slots. Slot occupancy lives in a
// bitmap; slot contents are a header followed by an optionally
// compressed page.
type SwapDevice struct {
	file        *os.File
	slotCount   uint32
	used        *bitset.BitSet
	compression CompressionType
	stats       SwapCompressionStats
	mutex       sync.Mutex
}

// OpenSwapDevice creates or truncates the swap file at path
func OpenSwapDevice(path string, slotCount uint32, compression CompressionType) (*SwapDevice, error) {
	if slotCount == 0 {
		return nil, fmt.Errorf("swap slot count must be greater than 0")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create swap file %s: %w", path, err)
	}

	return &SwapDevice{
		file:        file,
		slotCount:   slotCount,
		used:        bitset.New(uint(slotCount)),
		compression: compression,
	}, nil
}

// WriteOut stores a page in a free slot and returns the slot index.
// Swap contents do not outlive the process, so writes are not synced.
func (sd *SwapDevice) WriteOut(page []byte) (SwapSlot, error) {
	image, usedType, err := encodeSlot(page, sd.compression)
	if err != nil {
		return NoSwapSlot, ErrSwapWrite("WriteOut", NoSwapSlot, err)
	}

	sd.mutex.Lock()
	index, ok := sd.used.NextClear(0)
	if !ok || index >= uint(sd.slotCount) {
		sd.mutex.Unlock()
		return NoSwapSlot, ErrSwapFull("WriteOut")
	}
	sd.used.Set(index)
	sd.mutex.Unlock()

	slot := SwapSlot(index)
	if _, err := sd.file.WriteAt(image, slotOffset(slot)); err != nil {
		sd.mutex.Lock()
		sd.used.Clear(index)
		sd.mutex.Unlock()
		return NoSwapSlot, ErrSwapWrite("WriteOut", slot, err)
	}

	sd.mutex.Lock()
	sd.stats.add(usedType, len(image))
	sd.mutex.Unlock()

	return slot, nil
}

// ReadIn copies the page stored in slot into dst. The slot stays in use
// until Free is called.
func (sd *SwapDevice) ReadIn(slot SwapSlot, dst []byte) error {
	if !sd.InUse(slot) {
		return ErrInvalidSlot("ReadIn", slot)
	}

	image := make([]byte, SlotSize)
	n, err := sd.file.ReadAt(image, slotOffset(slot))
	if err != nil && n < SlotHeaderSize {
		return ErrSwapRead("ReadIn", slot, err)
	}

	if err := decodeSlot(image[:n], dst); err != nil {
		return ErrCorruptSlot("ReadIn", slot, err)
	}
	return nil
}

// Free returns slot to the device
func (sd *SwapDevice) Free(slot SwapSlot) error {
	sd.mutex.Lock()
	defer sd.mutex.Unlock()

	if uint32(slot) >= sd.slotCount || !sd.used.Test(uint(slot)) {
		return ErrInvalidSlot("Free", slot)
	}
	sd.used.Clear(uint(slot))
	return nil
}

// InUse reports whether slot holds a page
func (sd *SwapDevice) InUse(slot SwapSlot) bool {
	sd.mutex.Lock()
	defer sd.mutex.Unlock()
	return uint32(slot) < sd.slotCount && sd.used.Test(uint(slot))
}

// Used returns the number of occupied slots
func (sd *SwapDevice) Used() uint32 {
	sd.mutex.Lock()
	defer sd.mutex.Unlock()
	return uint32(sd.used.Count())
}

// Capacity returns the total number of slots
func (sd *SwapDevice) Capacity() uint32 {
	return sd.slotCount
}

// Stats returns a copy of the compression statistics
func (sd *SwapDevice) Stats() SwapCompressionStats {
	sd.mutex.Lock()
	defer sd.mutex.Unlock()
	return sd.stats
}

// Close closes the swap file
func (sd *SwapDevice) Close() error {
	if sd.file != nil {
		return sd.file.Close()
	}
	return nil
}

func slotOffset(slot SwapSlot) int64 {
	return int64(slot) * SlotSize
}
