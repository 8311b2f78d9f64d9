package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/sibexico/HexFrame/vm"
	"golang.org/x/sync/errgroup"
)

const userBase vm.VirtAddr = 0x08048000

type simulateOptions struct {
	frames   uint32
	contexts int
	pages    int
	accesses int
	seed     int64
}

type simulationReport struct {
	faults    uint64
	swapIns   uint64
	evictions uint64
	swapUsed  uint32
}

// simulator plays the fault handler for a set of contexts sharing one
// frame manager
type simulator struct {
	manager *vm.FrameManager
	pool    *vm.PhysicalPool
	swap    *vm.SwapDevice

	faults  atomic.Uint64
	swapIns atomic.Uint64
}

func runSimulation(ctx context.Context, cfg *vm.Config, opts simulateOptions, logger *slog.Logger) (simulationReport, error) {
	if err := cfg.Validate(); err != nil {
		return simulationReport{}, err
	}
	if opts.contexts <= 0 || opts.pages <= 0 {
		return simulationReport{}, fmt.Errorf("contexts and pages must be greater than 0")
	}
	if need := opts.contexts * opts.pages; need > int(cfg.SwapSlots) {
		return simulationReport{}, fmt.Errorf("workload needs up to %d swap slots, only %d configured", need, cfg.SwapSlots)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	compression, err := vm.ParseCompression(cfg.SwapCompression)
	if err != nil {
		return simulationReport{}, err
	}

	pool, err := vm.NewPhysicalPool(cfg.FrameCount, logger)
	if err != nil {
		return simulationReport{}, err
	}
	defer pool.Close()

	swap, err := vm.OpenSwapDevice(cfg.SwapPath, cfg.SwapSlots, compression)
	if err != nil {
		return simulationReport{}, err
	}
	defer swap.Close()

	registry := vm.NewRegistry()
	manager, err := vm.NewFrameManager(pool, swap, registry)
	if err != nil {
		return simulationReport{}, err
	}
	manager.SetLogger(logger)

	sim := &simulator{manager: manager, pool: pool, swap: swap}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.contexts; i++ {
		ec := vm.NewExecContext(vm.ContextID(i + 1))
		registry.Add(ec)
		rng := rand.New(rand.NewSource(opts.seed + int64(i)))

		g.Go(func() error {
			for n := 0; n < opts.accesses; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				upage := userBase + vm.VirtAddr(rng.Intn(opts.pages))*vm.PageSize
				if err := sim.access(ec, upage, rng.Intn(4) == 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return simulationReport{}, err
	}

	if err := checkFrames(manager.Frames()); err != nil {
		return simulationReport{}, err
	}

	if cfg.EnableMetrics {
		manager.Metrics().LogMetrics(logger)
		stats := swap.Stats()
		logger.Info("Swap compression",
			slog.Uint64("lz4", stats.LZ4Count),
			slog.Uint64("snappy", stats.SnappyCount),
			slog.Uint64("none", stats.NoneCount),
			slog.Float64("ratio", stats.GetCompressionRatio()),
		)
	}

	return simulationReport{
		faults:    sim.faults.Load(),
		swapIns:   sim.swapIns.Load(),
		evictions: manager.Metrics().GetEvictions(),
		swapUsed:  swap.Used(),
	}, nil
}

// access touches upage, faulting it in first if it is not present
func (s *simulator) access(ec *vm.ExecContext, upage vm.VirtAddr, write bool) error {
	pt := ec.PageDir.(*vm.PageTable)
	if pt.Touch(upage, write) {
		return nil
	}
	if err := s.fault(ec, upage); err != nil {
		return err
	}
	// A concurrent eviction may already have taken the page back.
	pt.Touch(upage, write)
	return nil
}

func (s *simulator) fault(ec *vm.ExecContext, upage vm.VirtAddr) error {
	s.faults.Add(1)

	frame, err := s.manager.Allocate(ec.ID, vm.AllocUser|vm.AllocZero)
	if err != nil {
		return fmt.Errorf("context %d: %w", ec.ID, err)
	}
	page := s.pool.Bytes(frame)

	spte := ec.Suppl.Lookup(upage)
	if spte == nil {
		spte = vm.NewSupplementalEntry(upage, false)
		ec.Suppl.Insert(spte)
	}

	writable := true
	if slot, swapped := spte.MarkLoaded(); swapped {
		if err := s.swap.ReadIn(slot, page); err != nil {
			return err
		}
		if err := s.swap.Free(slot); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(page); got != pageStamp(ec.ID, upage) {
			return fmt.Errorf("context %d page %#x: swapped in stamp %#x", ec.ID, upage, got)
		}
		writable = spte.State().Writable
		s.swapIns.Add(1)
	} else {
		binary.LittleEndian.PutUint64(page, pageStamp(ec.ID, upage))
	}

	pte := ec.PageDir.(*vm.PageTable).Map(upage, frame, writable)
	if !s.manager.Bind(frame, pte, upage) {
		return fmt.Errorf("context %d: frame %d lost before bind", ec.ID, frame)
	}
	return nil
}

func pageStamp(id vm.ContextID, upage vm.VirtAddr) uint64 {
	return uint64(id)<<32 | uint64(upage>>vm.PageShift)
}

// checkFrames verifies that no frame is registered twice
func checkFrames(frames []vm.FrameInfo) error {
	seen := make(map[vm.Frame]vm.ContextID, len(frames))
	for _, info := range frames {
		if owner, ok := seen[info.Frame]; ok {
			return fmt.Errorf("frame %d registered to contexts %d and %d", info.Frame, owner, info.Owner)
		}
		seen[info.Frame] = info.Owner
	}
	return nil
}
