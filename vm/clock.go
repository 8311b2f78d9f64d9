package vm

// maxClockPasses bounds the second-chance scan. After the first pass has
// cleared every accessed bit, the second pass settles on the first
// eligible entry it meets.
const maxClockPasses = 2

// selectVictim runs the second-chance scan over bound entries whose owner
// is still live. Accessed entries get their bit cleared and survive; the
// first unaccessed entry is moved to the back of the table and returned
// together with the number of passes the scan took.
func (ft *FrameTable) selectVictim(contexts ContextResolver) (*frameEntry, int, error) {
	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	for pass := 1; pass <= maxClockPasses; pass++ {
		var first *frameEntry

		for elem := ft.frames.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*frameEntry)
			if entry.pte == nil {
				continue
			}
			ctx, ok := contexts.Resolve(entry.owner)
			if !ok {
				continue
			}
			if first == nil {
				first = entry
			}

			if !ctx.PageDir.IsAccessed(entry.upage) {
				ft.frames.MoveToBack(elem)
				return entry, pass, nil
			}
			ctx.PageDir.SetAccessed(entry.upage, false)
		}

		if first == nil {
			break
		}
		if pass == maxClockPasses {
			ft.frames.MoveToBack(ft.index[first.frame])
			return first, pass, nil
		}
	}

	return nil, 0, ErrNoVictim("selectVictim")
}
