package vm

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// PageAllocator hands out raw physical frames.
// Obtain reports false when the pool is exhausted.
type PageAllocator interface {
	Obtain(flags AllocFlags) (Frame, bool)
	Release(frame Frame)
	Bytes(frame Frame) []byte
}

// PhysicalPool is a fixed set of user frames carved out of one anonymous
// memory mapping. Frames are identified by their index in the mapping.
type PhysicalPool struct {
	memory     []byte
	frameCount uint32
	freeList   []Frame
	leased     *bitset.BitSet
	logger     *slog.Logger
	mutex      sync.Mutex
}

// NewPhysicalPool maps frameCount frames and puts all of them on the free list
func NewPhysicalPool(frameCount uint32, logger *slog.Logger) (*PhysicalPool, error) {
	if frameCount == 0 {
		return nil, fmt.Errorf("frame count must be greater than 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	memory, err := mapMemory(int(frameCount) * PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d frames: %w", frameCount, err)
	}

	pool := &PhysicalPool{
		memory:     memory,
		frameCount: frameCount,
		freeList:   make([]Frame, 0, frameCount),
		leased:     bitset.New(uint(frameCount)),
		logger:     logger,
	}

	for i := uint32(0); i < frameCount; i++ {
		pool.freeList = append(pool.freeList, Frame(i))
	}

	return pool, nil
}

// Obtain takes a frame off the free list. Only the user pool exists, so
// requests without AllocUser are refused.
func (p *PhysicalPool) Obtain(flags AllocFlags) (Frame, bool) {
	if !flags.Has(AllocUser) {
		return InvalidFrame, false
	}

	p.mutex.Lock()
	if len(p.freeList) == 0 {
		p.mutex.Unlock()
		return InvalidFrame, false
	}
	frame := p.freeList[0]
	p.freeList = p.freeList[1:]
	p.leased.Set(uint(frame))
	p.mutex.Unlock()

	if flags.Has(AllocZero) {
		clear(p.Bytes(frame))
	}

	return frame, true
}

// Release puts a leased frame back on the free list.
// Releasing a frame that is not leased is logged and ignored.
func (p *PhysicalPool) Release(frame Frame) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if uint32(frame) >= p.frameCount || !p.leased.Test(uint(frame)) {
		p.logger.Warn("release of frame not leased from pool", slog.Uint64("frame", uint64(frame)))
		return
	}

	p.leased.Clear(uint(frame))
	p.freeList = append(p.freeList, frame)
}

// Bytes returns the frame's storage. The slice aliases pool memory.
func (p *PhysicalPool) Bytes(frame Frame) []byte {
	if uint32(frame) >= p.frameCount {
		return nil
	}
	offset := int(frame) * PageSize
	return p.memory[offset : offset+PageSize : offset+PageSize]
}

// FrameCount returns the total number of frames in the pool
func (p *PhysicalPool) FrameCount() uint32 {
	return p.frameCount
}

// FreeCount returns the number of frames on the free list
func (p *PhysicalPool) FreeCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.freeList)
}

// Leased reports whether the frame is currently handed out
func (p *PhysicalPool) Leased(frame Frame) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return uint32(frame) < p.frameCount && p.leased.Test(uint(frame))
}

// Close unmaps the pool memory. Frames must not be used afterwards.
func (p *PhysicalPool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.memory == nil {
		return nil
	}
	err := unmapMemory(p.memory)
	p.memory = nil
	p.frameCount = 0
	p.freeList = nil
	return err
}
