package heap

// numFreeClasses is K from the specification: the number of size-segregated
// free-list classes. The last class holds every block of size >= K.
const numFreeClasses = 32

// freeListRegistry is a fixed-capacity array of K head pointers. Each free
// block's first payload word stores the encoded address of the next free
// block in its class, or 0 ("end of list"). An empty head is the
// encoded-zero sentinel, which doubles as the address of the arena base —
// a location that can never itself be a block.
type freeListRegistry struct {
	head [numFreeClasses]Addr
}

// classOf returns the free-list class index for a block of size payload
// words: min(size-1, K-1).
func classOf(size Word) int {
	idx := int(size) - 1
	if idx >= numFreeClasses {
		idx = numFreeClasses - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// initFreeLists resets every class head to the empty sentinel.
func (h *Heap) initFreeLists() {
	for i := range h.fl.head {
		h.fl.head[i] = 0
	}
}

// listNext follows the in-payload next-pointer of a free block.
func (h *Heap) listNext(b Addr) Addr {
	return h.a.word(b)
}

// prepend links b onto the front of class idx.
func (h *Heap) prepend(idx int, b Addr) {
	h.a.setWord(b, h.fl.head[idx])
	h.fl.head[idx] = b
}

// popHead unlinks the current head of class idx, advancing it to the next
// free block in that class.
func (h *Heap) popHead(idx int) {
	h.fl.head[idx] = h.listNext(h.fl.head[idx])
}

// removeNext unlinks the block immediately following prev in prev's class,
// zeroing the unlinked node's first word.
func (h *Heap) removeNext(prev Addr) {
	next := h.listNext(prev)
	if next == 0 {
		return
	}
	h.a.setWord(prev, h.listNext(next))
	h.a.setWord(next, 0)
}
