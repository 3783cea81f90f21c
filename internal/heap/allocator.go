package heap

// Allocate returns a block of size payload words tagged tag. It first
// searches the free-list registry; on failure it runs a collection cycle
// and retries exactly once before invoking the fail callback. It never
// returns a zero Addr on success, and never returns at all on failure
// (fail is contractually non-returning).
func (h *Heap) Allocate(roots Roots, tag Tag, size Word) (Addr, error) {
	if !h.a.ready {
		panic("heap: Allocate called before SetHeapStart")
	}

	needed := realSize(size)

	b, ok := h.findAndSplit(tag, size, needed)
	if !ok {
		h.Mark(roots)
		h.sweep()
		b, ok = h.findAndSplit(tag, size, needed)
	}
	if !ok {
		h.fail("cannot allocate %d bytes of memory", size)
		panic("heap: fail callback returned after allocation failure")
	}

	h.allocCount++
	return b, nil
}

// findAndSplit performs one first-fit search over the registry for a free
// block of at least needed payload words, unlinks it, splits off any
// remainder, and rewrites its header for (tag, size). It reports ok=false
// if no block was found.
func (h *Heap) findAndSplit(tag Tag, size, needed Word) (Addr, bool) {
	startClass := classOf(needed)
	for idx := startClass; idx < numFreeClasses; idx++ {
		var prev Addr
		block := h.fl.head[idx]
		for block != 0 {
			blockSize := unpackSize(h.a.word(block - wordBytes))
			if blockSize >= needed {
				if prev == 0 {
					h.popHead(idx)
				} else {
					h.removeNext(prev)
				}
				h.splitRemainder(block, blockSize, needed)

				h.bitSet(block)
				h.a.setWord(block-wordBytes, packHeader(tag, size))
				h.a.setWord(block, 0)
				return block, true
			}
			prev = block
			block = h.listNext(block)
		}
	}
	return 0, false
}

// splitRemainder carves needed words out of a block of blockSize words and
// republishes the remainder, if any, as a new free block. A zero-sized
// remainder is left in place as a degenerate one-header-word free block
// rather than refused or coalesced eagerly; a sweep merges it with a
// neighboring free block once one exists.
func (h *Heap) splitRemainder(block Addr, blockSize, needed Word) {
	if blockSize <= needed {
		return
	}
	remainder := blockSize - needed - headerSize
	newFree := block + Addr(needed)*wordBytes + wordBytes
	h.a.setWord(newFree-wordBytes, packHeader(TagNone, remainder))
	if remainder > 0 {
		h.prepend(classOf(remainder), newFree)
	}
}
