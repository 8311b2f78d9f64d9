package vm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// HaltFunc is called on unrecoverable failures. It is not expected to
// return; the default panics.
type HaltFunc func(err error)

// FrameManager leases physical frames to execution contexts and reclaims
// them by eviction when the pool runs dry.
//
// Lock order: evictionMutex is the outer, long-held lock and serializes
// select, write-out and reclaim so at most one eviction is in flight. The
// frame table's own lock is the inner one and is held only for a single
// traversal or mutation.
type FrameManager struct {
	pool     PageAllocator
	table    *FrameTable
	swap     SwapWriter
	contexts ContextResolver
	metrics  *Metrics
	logger   *slog.Logger
	halt     HaltFunc

	evictionMutex sync.Mutex

	closers []io.Closer // resources opened by NewFrameManagerFromConfig
}

// NewFrameManager creates a frame manager over the given collaborators
func NewFrameManager(pool PageAllocator, swap SwapWriter, contexts ContextResolver) (*FrameManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("page allocator is required")
	}
	if swap == nil {
		return nil, fmt.Errorf("swap writer is required")
	}
	if contexts == nil {
		return nil, fmt.Errorf("context resolver is required")
	}

	return &FrameManager{
		pool:     pool,
		table:    NewFrameTable(),
		swap:     swap,
		contexts: contexts,
		metrics:  NewMetrics(),
		logger:   slog.Default(),
		halt:     defaultHalt,
	}, nil
}

// NewFrameManagerFromConfig opens a physical pool and a swap device as
// described by cfg. Close releases both.
func NewFrameManagerFromConfig(cfg *Config, contexts ContextResolver, logger *slog.Logger) (*FrameManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	compression, err := ParseCompression(cfg.SwapCompression)
	if err != nil {
		return nil, err
	}

	pool, err := NewPhysicalPool(cfg.FrameCount, logger)
	if err != nil {
		return nil, err
	}

	swap, err := OpenSwapDevice(cfg.SwapPath, cfg.SwapSlots, compression)
	if err != nil {
		pool.Close()
		return nil, err
	}

	m, err := NewFrameManager(pool, swap, contexts)
	if err != nil {
		swap.Close()
		pool.Close()
		return nil, err
	}
	m.SetLogger(logger)
	m.closers = []io.Closer{swap, pool}

	return m, nil
}

// SetLogger sets the logger used for eviction and failure reports
func (m *FrameManager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetHaltFunc replaces the handler for unrecoverable failures
func (m *FrameManager) SetHaltFunc(halt HaltFunc) {
	if halt != nil {
		m.halt = halt
	}
}

// Allocate obtains a frame for owner, evicting another frame when the
// pool is empty. The returned frame is registered but unbound.
// Failure to evict is unrecoverable and goes through the halt handler.
func (m *FrameManager) Allocate(owner ContextID, flags AllocFlags) (Frame, error) {
	if !flags.Has(AllocUser) {
		return InvalidFrame, ErrInvalidFlags("Allocate", flags)
	}
	m.metrics.RecordAllocation()

	if frame, ok := m.pool.Obtain(flags); ok {
		if !m.table.Register(frame, owner) {
			m.pool.Release(frame)
			return InvalidFrame, ErrDuplicateFrame("Allocate", frame)
		}
		m.metrics.RecordPoolHit()
		return frame, nil
	}

	frame, err := m.evict(owner)
	if err != nil {
		m.fatal(err)
		return InvalidFrame, err
	}
	return frame, nil
}

// Release unregisters frame and returns it to the pool. Releasing a frame
// that is not registered leaves everything unchanged.
func (m *FrameManager) Release(frame Frame) {
	// Waits out an eviction that may be reading or reclaiming this frame.
	m.evictionMutex.Lock()
	defer m.evictionMutex.Unlock()

	if !m.table.Unregister(frame) {
		m.logger.Warn("release of unregistered frame", slog.Uint64("frame", uint64(frame)))
		return
	}
	m.pool.Release(frame)
	m.metrics.RecordRelease()
}

// Bind attaches frame to the page table entry and virtual page chosen by
// the fault handler. It reports false if the frame is no longer registered.
func (m *FrameManager) Bind(frame Frame, pte *PageTableEntry, upage VirtAddr) bool {
	if !m.table.Bind(frame, pte, upage) {
		m.metrics.RecordBindMiss()
		return false
	}
	return true
}

// Lookup returns a snapshot of the entry for frame
func (m *FrameManager) Lookup(frame Frame) (FrameInfo, bool) {
	return m.table.Lookup(frame)
}

// Frames returns all registered frames in eviction-scan order
func (m *FrameManager) Frames() []FrameInfo {
	return m.table.Snapshot()
}

// Len returns the number of registered frames
func (m *FrameManager) Len() int {
	return m.table.Len()
}

// Metrics returns the manager's metrics
func (m *FrameManager) Metrics() *Metrics {
	return m.metrics
}

// Close releases resources opened by NewFrameManagerFromConfig
func (m *FrameManager) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// evict selects a victim, writes it back and reclaims its frame for
// requester, all under the eviction lock
func (m *FrameManager) evict(requester ContextID) (Frame, error) {
	m.evictionMutex.Lock()
	defer m.evictionMutex.Unlock()

	start := time.Now()

	victim, passes, err := m.table.selectVictim(m.contexts)
	m.metrics.RecordClockPasses(passes)
	if err != nil {
		return InvalidFrame, err
	}

	frame, err := m.evictAndReclaim(victim, requester)
	if err != nil {
		return InvalidFrame, fmt.Errorf("can't save evicted frame: %w", err)
	}

	m.metrics.RecordEviction(time.Since(start))
	return frame, nil
}

func (m *FrameManager) fatal(err error) {
	m.logger.Error("unrecoverable frame manager failure",
		slog.String("code", GetErrorCode(err).String()),
		slog.Any("error", err),
	)
	m.halt(err)
}

func defaultHalt(err error) {
	panic(err)
}
