package vm

import (
	"testing"
)

// stickyPageDir reports every page as accessed no matter how often the bit
// is cleared, like a page that is re-referenced during every scan
type stickyPageDir struct {
	*PageTable
	clears int
}

func (s *stickyPageDir) IsAccessed(upage VirtAddr) bool {
	return true
}

func (s *stickyPageDir) SetAccessed(upage VirtAddr, accessed bool) {
	if !accessed {
		s.clears++
	}
}

type clockFixture struct {
	table    *FrameTable
	registry *Registry
	pt       *PageTable
}

func newClockFixture() *clockFixture {
	ctx := NewExecContext(1)
	registry := NewRegistry()
	registry.Add(ctx)
	return &clockFixture{
		table:    NewFrameTable(),
		registry: registry,
		pt:       ctx.PageDir.(*PageTable),
	}
}

// add registers a bound frame for upage with the given accessed bit
func (f *clockFixture) add(frame Frame, upage VirtAddr, accessed bool) {
	f.table.Register(frame, 1)
	pte := f.pt.Map(upage, frame, true)
	f.table.Bind(frame, pte, upage)
	f.pt.SetAccessed(upage, accessed)
}

func (f *clockFixture) order() []Frame {
	var frames []Frame
	for _, info := range f.table.Snapshot() {
		frames = append(frames, info.Frame)
	}
	return frames
}

func assertOrder(t *testing.T, got, expected []Frame) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Expected order %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected order %v, got %v", expected, got)
		}
	}
}

// TestClockFirstUnaccessed tests that the first unaccessed frame is chosen
// and rotated to the back without touching later frames
func TestClockFirstUnaccessed(t *testing.T) {
	f := newClockFixture()
	f.add(0, 0x1000, false) // A
	f.add(1, 0x2000, true)  // B
	f.add(2, 0x3000, false) // C

	victim, passes, err := f.table.selectVictim(f.registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if victim.frame != 0 {
		t.Errorf("Expected victim A (frame 0), got %d", victim.frame)
	}
	if passes != 1 {
		t.Errorf("Expected 1 pass, got %d", passes)
	}
	// The scan stops at A, so B and C are never visited.
	if !f.pt.IsAccessed(0x2000) {
		t.Error("B was not scanned and should keep its accessed bit")
	}
	if f.pt.IsAccessed(0x3000) {
		t.Error("C should be untouched")
	}
	assertOrder(t, f.order(), []Frame{1, 2, 0})
}

// TestClockClearsAccessedBeforeVictim tests the second-chance side effect on
// frames scanned before the victim
func TestClockClearsAccessedBeforeVictim(t *testing.T) {
	f := newClockFixture()
	f.add(1, 0x2000, true)  // B
	f.add(0, 0x1000, false) // A
	f.add(2, 0x3000, false) // C

	victim, passes, err := f.table.selectVictim(f.registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if victim.frame != 0 {
		t.Errorf("Expected victim A (frame 0), got %d", victim.frame)
	}
	if passes != 1 {
		t.Errorf("Expected 1 pass, got %d", passes)
	}
	if f.pt.IsAccessed(0x2000) {
		t.Error("B should have its accessed bit cleared")
	}
	if f.pt.IsAccessed(0x3000) {
		t.Error("C should be untouched")
	}
	assertOrder(t, f.order(), []Frame{1, 2, 0})
}

// TestClockAllAccessed tests that a fully accessed table takes two passes and
// yields the first frame of the second pass
func TestClockAllAccessed(t *testing.T) {
	f := newClockFixture()
	f.add(0, 0x1000, true)
	f.add(1, 0x2000, true)
	f.add(2, 0x3000, true)

	victim, passes, err := f.table.selectVictim(f.registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if passes != 2 {
		t.Errorf("Expected 2 passes, got %d", passes)
	}
	if victim.frame != 0 {
		t.Errorf("Expected first frame as victim, got %d", victim.frame)
	}
	for _, upage := range []VirtAddr{0x1000, 0x2000, 0x3000} {
		if f.pt.IsAccessed(upage) {
			t.Errorf("Accessed bit of %#x should be cleared", upage)
		}
	}
	assertOrder(t, f.order(), []Frame{1, 2, 0})
}

// TestClockBoundedPasses tests that pages re-referenced during the scan still
// produce a victim after two passes
func TestClockBoundedPasses(t *testing.T) {
	ft := NewFrameTable()
	registry := NewRegistry()
	sticky := &stickyPageDir{PageTable: NewPageTable()}
	registry.Add(&ExecContext{ID: 1, PageDir: sticky, Suppl: NewSupplPageTable()})

	for i := Frame(0); i < 4; i++ {
		upage := VirtAddr(i+1) * PageSize
		ft.Register(i, 1)
		ft.Bind(i, sticky.Map(upage, i, true), upage)
	}

	victim, passes, err := ft.selectVictim(registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if passes != 2 {
		t.Errorf("Expected 2 passes, got %d", passes)
	}
	if victim.frame != 0 {
		t.Errorf("Expected first encountered frame, got %d", victim.frame)
	}
	if sticky.clears != 8 {
		t.Errorf("Expected 8 accessed-bit clears over two passes, got %d", sticky.clears)
	}
}

// TestClockSkipsUnbound tests that frames mid-allocation are never chosen
func TestClockSkipsUnbound(t *testing.T) {
	f := newClockFixture()
	f.table.Register(7, 1) // unbound
	f.add(1, 0x2000, true)

	victim, _, err := f.table.selectVictim(f.registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if victim.frame != 1 {
		t.Errorf("Expected bound frame 1, got %d", victim.frame)
	}
}

// TestClockSkipsDeadOwners tests that frames of unregistered contexts are skipped
func TestClockSkipsDeadOwners(t *testing.T) {
	f := newClockFixture()
	f.table.Register(3, 99)
	f.table.Bind(3, NewPageTable().Map(0x5000, 3, true), 0x5000)
	f.add(4, 0x6000, false)

	victim, _, err := f.table.selectVictim(f.registry)
	if err != nil {
		t.Fatalf("selectVictim failed: %v", err)
	}
	if victim.frame != 4 {
		t.Errorf("Expected frame 4, got %d", victim.frame)
	}
}

// TestClockNoVictim tests the failure when nothing is eligible
func TestClockNoVictim(t *testing.T) {
	f := newClockFixture()

	if _, _, err := f.table.selectVictim(f.registry); !IsErrorCode(err, ErrCodeNoVictim) {
		t.Errorf("Expected no victim error on empty table, got %v", err)
	}

	f.table.Register(1, 1)
	f.table.Register(2, 1)
	if _, _, err := f.table.selectVictim(f.registry); !IsErrorCode(err, ErrCodeNoVictim) {
		t.Errorf("Expected no victim error with only unbound frames, got %v", err)
	}
}
