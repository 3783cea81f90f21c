package heap

// Mark performs the mark phase of a collection cycle: a recursive, precise
// walk from the three VM-held roots. Root values are fetched once, up
// front, so a root must not change while marking is in progress. Mark alone
// leaves reachable blocks with their mark bit cleared and nothing reclaimed
// or re-armed; callers that want a complete collection should call Collect
// instead.
func (h *Heap) Mark(roots Roots) {
	ib, lb, ob := roots.Ib(), roots.Lb(), roots.Ob()
	h.recMark(ib)
	h.recMark(lb)
	h.recMark(ob)
}

// Collect runs one full collection cycle: mark, then sweep. This is the
// entry point anything outside the package should use to force a
// collection; marking without sweeping leaves the bitmap in a state the
// next real cycle would misinterpret (reachable blocks would look
// already-visited and get skipped instead of re-marked).
func (h *Heap) Collect(roots Roots) {
	h.Mark(roots)
	h.sweep()
}

// recMark visits a single root (or a pointer found while scanning another
// block's payload). It bounds-checks strictly against the heap region
// (root > heapStart && root < end), using a strict upper bound: a
// non-strict "<=" here would let the walk treat one word past the heap as a
// valid block address.
func (h *Heap) recMark(r Addr) {
	if r <= h.a.heapStart || r >= h.a.end() {
		return
	}
	if !h.bitIsSet(r) {
		return
	}
	// Clearing the bit both records this block as reached and guards
	// against revisiting it later in the same mark phase.
	h.bitClear(r)

	size := unpackSize(h.a.word(r - wordBytes))
	for i := Word(0); i < size; i++ {
		w := h.a.word(r + Addr(i)*wordBytes)
		if IsPointerWord(w) {
			h.recMark(Addr(w))
		}
	}
}

// sweep walks the heap linearly, reclaiming every block still marked as a
// collection candidate, coalescing adjacent free blocks, and rebuilding the
// free-list registry from scratch in address order.
func (h *Heap) sweep() {
	h.initFreeLists()

	startFree := h.a.heapStart + wordBytes
	c := startFree
	lastList := -1

	for c < h.a.end() {
		size := unpackSize(h.a.word(c - wordBytes))

		if h.bitIsSet(c) {
			// Still a candidate at sweep time: nothing reached it. Reclaim.
			h.bitClear(c)
			size = realSize(size)
			h.a.zero(c, size)
			h.a.setWord(c-wordBytes, packHeader(TagNone, size))
		}

		if unpackTag(h.a.word(c-wordBytes)) == TagNone {
			if startFree < c {
				size = h.coalesce(startFree, c, size)
				c = startFree
			}
			if size == 0 {
				// A header-only free block with no free block before it has
				// no payload word to hold a list link, so it is not
				// registered; a free block that follows it coalesces into it.
				c += wordBytes
				continue
			}
			idx := classOf(size)
			if idx != lastList {
				if lastList >= 0 {
					h.popHead(lastList)
				}
				h.prepend(idx, c)
				lastList = idx
			}
			// If idx == lastList, the coalesced run fell into the same
			// size class it was already registered under; the head still
			// points at c from the previous iteration.
		} else {
			size = realSize(size)
			startFree = c + Addr(size)*wordBytes + wordBytes
			h.bitSet(c) // re-arm for the next cycle
			lastList = -1
		}

		c += Addr(size)*wordBytes + wordBytes
	}
	h.gcCount++
}

// coalesce merges the free block at current into the free run starting at
// startFree, returning the combined payload size in words.
func (h *Heap) coalesce(startFree, current Addr, curSize Word) Word {
	h.a.setWord(current-wordBytes, 0)
	if curSize > 0 {
		h.a.setWord(current, 0)
	}
	freeSize := Word((current-startFree)/wordBytes) + curSize
	h.a.setWord(startFree-wordBytes, packHeader(TagNone, freeSize))
	return freeSize
}
