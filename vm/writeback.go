package vm

import (
	"time"
)

// evictAndReclaim persists a victim's page when needed, detaches it from
// its owner and hands the frame to requester. The caller holds the
// eviction lock; the table lock is only taken for short snapshots so it
// is never held across swap I/O.
func (m *FrameManager) evictAndReclaim(victim *frameEntry, requester ContextID) (Frame, error) {
	info := m.table.info(victim)

	ctx, ok := m.contexts.Resolve(info.Owner)
	if !ok {
		return InvalidFrame, ErrContextNotFound("evictAndReclaim", info.Owner)
	}

	spte := ctx.Suppl.Lookup(info.UserPage)
	if spte == nil {
		// Anonymous page that has never been swapped.
		spte = NewSupplementalEntry(info.UserPage, false)
		if !ctx.Suppl.Insert(spte) {
			return InvalidFrame, ErrBookkeeping("evictAndReclaim", "supplemental page entry")
		}
	}

	writable := info.PTE.Writable()
	page := m.pool.Bytes(info.Frame)

	// Anonymous pages have no other backing store; clean file pages can be
	// reloaded from their file.
	persist := ctx.PageDir.IsDirty(info.UserPage) || !spte.IsFile()

	slot := NoSwapSlot
	if persist {
		start := time.Now()
		var err error
		slot, err = m.swap.WriteOut(page)
		if err != nil {
			return InvalidFrame, err
		}
		m.metrics.RecordSwapWrite(time.Since(start))
	} else {
		m.metrics.RecordCleanSkip()
	}

	clear(page)

	if persist {
		spte.MarkSwapped(slot, writable)
	} else {
		spte.MarkEvicted(writable)
	}

	ctx.PageDir.ClearPage(info.UserPage)

	frame, ok := m.table.reassign(victim, requester)
	if !ok {
		return InvalidFrame, ErrFrameNotFound("evictAndReclaim", info.Frame)
	}

	m.logger.Debug("evicted frame",
		"frame", uint64(frame),
		"from", uint64(info.Owner),
		"to", uint64(requester),
		"upage", uint64(info.UserPage),
		"persisted", persist,
		"slot", uint64(slot),
	)

	return frame, nil
}
