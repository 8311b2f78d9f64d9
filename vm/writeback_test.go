package vm

import (
	"bytes"
	"testing"
)

// TestEvictDirtyPage tests that a dirty anonymous page is written to swap,
// the frame is zeroed and handed to the requester
func TestEvictDirtyPage(t *testing.T) {
	env := newTestEnv(t, 1)
	owner := env.newContext(1)
	requester := env.newContext(2)

	frame := env.mapPage(t, owner, 0x8000, true)
	copy(env.pool.Bytes(frame), bytes.Repeat([]byte{0xAB}, PageSize))
	owner.PageDir.(*PageTable).Touch(0x8000, true)
	before, _ := env.manager.Lookup(frame)

	got, err := env.manager.Allocate(requester.ID, AllocUser)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != frame {
		t.Fatalf("Expected reclaimed frame %d, got %d", frame, got)
	}

	if !isZeroed(env.pool.Bytes(frame)) {
		t.Error("Reclaimed frame should be zeroed")
	}

	info, ok := env.manager.Lookup(frame)
	if !ok {
		t.Fatal("Reclaimed frame should stay registered")
	}
	if info.Owner != requester.ID {
		t.Errorf("Expected owner %d, got %d", requester.ID, info.Owner)
	}
	if info.Bound() {
		t.Error("Reclaimed frame should be unbound")
	}
	if info.Generation == before.Generation {
		t.Error("Generation should change after reclaim")
	}

	if env.swap.count() != 1 {
		t.Fatalf("Expected 1 swap write, got %d", env.swap.count())
	}
	if !bytes.Equal(env.swap.writes[0], bytes.Repeat([]byte{0xAB}, PageSize)) {
		t.Error("Swap should receive the page contents from before zeroing")
	}

	spte := owner.Suppl.Lookup(0x8000)
	if spte == nil {
		t.Fatal("Eviction should create a supplemental entry")
	}
	state := spte.State()
	if !state.InSwap || state.IsLoaded {
		t.Errorf("Expected in swap and not loaded, got %+v", state)
	}
	if state.SwapSlot != 0 {
		t.Errorf("Expected slot 0, got %d", state.SwapSlot)
	}
	if !state.Writable {
		t.Error("Writable bit should be recorded")
	}

	if _, ok := owner.PageDir.(*PageTable).Lookup(0x8000); ok {
		t.Error("Owner mapping should be cleared")
	}
	if env.manager.Metrics().GetEvictions() != 1 {
		t.Errorf("Expected 1 eviction, got %d", env.manager.Metrics().GetEvictions())
	}
}

// TestEvictCleanAnonymousPage tests that anonymous pages are persisted even when clean
func TestEvictCleanAnonymousPage(t *testing.T) {
	env := newTestEnv(t, 1)
	owner := env.newContext(1)
	requester := env.newContext(2)

	env.mapPage(t, owner, 0x8000, false)

	if _, err := env.manager.Allocate(requester.ID, AllocUser); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if env.swap.count() != 1 {
		t.Errorf("Expected clean anonymous page to be written, got %d writes", env.swap.count())
	}
	if state := owner.Suppl.Lookup(0x8000).State(); state.Writable {
		t.Error("Read-only mapping should be recorded as not writable")
	}
}

// TestEvictCleanFilePage tests that clean file-backed pages skip the swap device
func TestEvictCleanFilePage(t *testing.T) {
	env := newTestEnv(t, 1)
	owner := env.newContext(1)
	requester := env.newContext(2)

	spte := NewSupplementalEntry(0x8000, true)
	owner.Suppl.Insert(spte)
	frame := env.mapPage(t, owner, 0x8000, false)
	spte.MarkLoaded()
	copy(env.pool.Bytes(frame), []byte("file contents"))

	if _, err := env.manager.Allocate(requester.ID, AllocUser); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if env.swap.count() != 0 {
		t.Errorf("Clean file page should not be written, got %d writes", env.swap.count())
	}
	if !isZeroed(env.pool.Bytes(frame)) {
		t.Error("Frame should be zeroed even without write-out")
	}

	state := spte.State()
	if state.InSwap {
		t.Error("Skipped page should not be marked in swap")
	}
	if state.SwapSlot != NoSwapSlot {
		t.Errorf("Skipped page should keep its prior slot, got %d", state.SwapSlot)
	}
	if state.IsLoaded {
		t.Error("Evicted page should not be loaded")
	}
	if env.manager.Metrics().GetCleanSkips() != 1 {
		t.Errorf("Expected 1 clean skip, got %d", env.manager.Metrics().GetCleanSkips())
	}
}

// TestEvictDirtyFilePage tests that dirty file-backed pages are written to swap
func TestEvictDirtyFilePage(t *testing.T) {
	env := newTestEnv(t, 1)
	owner := env.newContext(1)
	requester := env.newContext(2)
	env.swap.next = 41

	spte := NewSupplementalEntry(0x8000, true)
	owner.Suppl.Insert(spte)
	env.mapPage(t, owner, 0x8000, true)
	owner.PageDir.(*PageTable).Touch(0x8000, true)

	if _, err := env.manager.Allocate(requester.ID, AllocUser); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if env.swap.count() != 1 {
		t.Fatalf("Dirty file page should be written, got %d writes", env.swap.count())
	}
	state := spte.State()
	if !state.InSwap || state.SwapSlot != 41 {
		t.Errorf("Expected in swap at slot 41, got %+v", state)
	}
}

// TestEvictSwapFailureHalts tests that a failed write-out is fatal
func TestEvictSwapFailureHalts(t *testing.T) {
	env := newTestEnv(t, 1)
	owner := env.newContext(1)
	requester := env.newContext(2)
	env.swap.err = ErrSwapFull("WriteOut")

	frame := env.mapPage(t, owner, 0x8000, true)

	got, err := env.manager.Allocate(requester.ID, AllocUser)
	if err == nil || got.Valid() {
		t.Fatalf("Expected failure, got frame %d", got)
	}
	if len(env.halts) != 1 {
		t.Fatalf("Expected 1 halt, got %d", len(env.halts))
	}
	if !IsErrorCode(env.halts[0], ErrCodeSwapFull) {
		t.Errorf("Expected swap full halt, got %v", env.halts[0])
	}

	info, _ := env.manager.Lookup(frame)
	if info.Owner != owner.ID {
		t.Error("Frame should not change owner when eviction fails")
	}
}

// TestEvictNoVictimPanics tests the default halt behavior
func TestEvictNoVictimPanics(t *testing.T) {
	pool, err := NewPhysicalPool(1, discardLogger())
	if err != nil {
		t.Fatalf("Failed to create PhysicalPool: %v", err)
	}
	defer pool.Close()

	registry := NewRegistry()
	registry.Add(NewExecContext(1))
	m, err := NewFrameManager(pool, &recordingSwap{}, registry)
	if err != nil {
		t.Fatalf("Failed to create FrameManager: %v", err)
	}
	m.SetLogger(discardLogger())

	// The only frame is allocated but never bound, so nothing is evictable.
	if _, err := m.Allocate(1, AllocUser); err != nil {
		t.Fatalf("First Allocate failed: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic when no victim exists")
		}
		if err, ok := r.(error); !ok || !IsErrorCode(err, ErrCodeNoVictim) {
			t.Errorf("Expected no victim panic, got %v", r)
		}
	}()
	m.Allocate(1, AllocUser)
}
