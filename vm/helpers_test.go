package vm

import (
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSwap keeps a copy of every page written out
type recordingSwap struct {
	mu     sync.Mutex
	writes [][]byte
	next   SwapSlot
	err    error
}

func (s *recordingSwap) WriteOut(page []byte) (SwapSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return NoSwapSlot, s.err
	}
	data := make([]byte, len(page))
	copy(data, page)
	s.writes = append(s.writes, data)

	slot := s.next
	s.next++
	return slot, nil
}

func (s *recordingSwap) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type testEnv struct {
	manager  *FrameManager
	pool     *PhysicalPool
	swap     *recordingSwap
	registry *Registry
	halts    []error
}

// newTestEnv builds a manager over a real pool and a recording swap.
// Halts are recorded instead of panicking.
func newTestEnv(t *testing.T, frames uint32) *testEnv {
	t.Helper()

	pool, err := NewPhysicalPool(frames, discardLogger())
	if err != nil {
		t.Fatalf("Failed to create PhysicalPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	env := &testEnv{
		pool:     pool,
		swap:     &recordingSwap{},
		registry: NewRegistry(),
	}

	env.manager, err = NewFrameManager(pool, env.swap, env.registry)
	if err != nil {
		t.Fatalf("Failed to create FrameManager: %v", err)
	}
	env.manager.SetLogger(discardLogger())
	env.manager.SetHaltFunc(func(err error) {
		env.halts = append(env.halts, err)
	})
	return env
}

func (env *testEnv) newContext(id ContextID) *ExecContext {
	ctx := NewExecContext(id)
	env.registry.Add(ctx)
	return ctx
}

// mapPage does what a fault handler does for a fresh page: allocate a
// frame, map it and bind it
func (env *testEnv) mapPage(t *testing.T, ctx *ExecContext, upage VirtAddr, writable bool) Frame {
	t.Helper()

	frame, err := env.manager.Allocate(ctx.ID, AllocUser|AllocZero)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	pte := ctx.PageDir.(*PageTable).Map(upage, frame, writable)
	if !env.manager.Bind(frame, pte, upage) {
		t.Fatalf("Bind of frame %d failed", frame)
	}
	return frame
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
