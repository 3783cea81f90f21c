package heap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoots is a minimal Roots implementation for tests.
type fakeRoots struct {
	ib, lb, ob Addr
}

func (r fakeRoots) Ib() Addr { return r.ib }
func (r fakeRoots) Lb() Addr { return r.lb }
func (r fakeRoots) Ob() Addr { return r.ob }

// oomPanic is the sentinel recovered from a fail callback that simulates
// the fail hook's non-returning contract via panic.
type oomPanic struct{ msg string }

func panicFail(format string, args ...any) {
	panic(oomPanic{msg: fmt.Sprintf(format, args...)})
}

func newTestHeap(t *testing.T, totalBytes, codeWords int) *Heap {
	t.Helper()
	h, err := New(totalBytes, panicFail)
	require.NoError(t, err)
	require.NoError(t, h.SetHeapStart(codeWords))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// soleFreeBlockSize returns the payload size of the highest-class free
// block currently registered, used to discover the exact initial free
// block size (which depends on the bitmap's overhead, not just the
// requested arena size) without hardcoding it.
func soleFreeBlockSize(h *Heap) Word {
	for idx := numFreeClasses - 1; idx >= 0; idx-- {
		if h.fl.head[idx] != 0 {
			return h.BlockSize(h.fl.head[idx])
		}
	}
	return 0
}

func TestSetupTeardown(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	assert.Equal(t, "Mark and Sweep GC", h.Identity())

	stats := h.ReadStats()
	assert.Equal(t, stats.HeapWords, stats.FreeWords+1, "single free block leaves only its header word unaccounted for")
}

func TestHeaderRoundtrip(t *testing.T) {
	tags := []Tag{TagString, TagRegisterFrame, TagFunction, TagNone}
	for _, tag := range tags {
		for _, size := range []Word{1, 2, 100, maxBlockSize} {
			h := packHeader(tag, size)
			assert.Equal(t, tag, unpackTag(h))
			assert.Equal(t, size, unpackSize(h))
		}
	}
}

func TestSplit(t *testing.T) {
	h := newTestHeap(t, 4*(100+2)+4*16, 16)
	roots := fakeRoots{}
	before := soleFreeBlockSize(h)

	b, err := h.Allocate(roots, TagString, 10)
	require.NoError(t, err)
	assert.Equal(t, Word(10), h.BlockSize(b))
	assert.Equal(t, TagString, h.BlockTag(b))

	// The split remainder is before-10-1 words, registered under the
	// class its size falls into.
	want := before - 10 - 1
	assert.Equal(t, want, soleFreeBlockSize(h))
}

func TestCoalesce(t *testing.T) {
	// Allocate A(5), B(5), C(5) out of the initial free block, drop all
	// roots, force a collection, and expect one free block covering the
	// whole region again.
	h := newTestHeap(t, 4*(30+2)+4*16, 16)
	roots := fakeRoots{}
	before := soleFreeBlockSize(h)

	a, err := h.Allocate(roots, TagString, 5)
	require.NoError(t, err)
	b, err := h.Allocate(roots, TagString, 5)
	require.NoError(t, err)
	c, err := h.Allocate(roots, TagString, 5)
	require.NoError(t, err)
	_ = a
	_ = b
	_ = c

	h.Mark(roots) // nothing reachable: all three blocks stay marked
	h.sweep()

	assert.Equal(t, before, soleFreeBlockSize(h))
	assert.Equal(t, uint64(before), h.ReadStats().FreeWords)
}

func TestReachabilityViaOneHop(t *testing.T) {
	h := newTestHeap(t, 4*(64+2)+4*16, 16)
	roots := fakeRoots{}

	x, err := h.Allocate(roots, TagRegisterFrame, 3)
	require.NoError(t, err)
	y, err := h.Allocate(roots, TagString, 3)
	require.NoError(t, err)

	h.WriteField(x, 0, y)
	roots.ib = x

	h.Mark(roots)
	h.sweep()

	assert.Equal(t, TagRegisterFrame, h.BlockTag(x))
	assert.Equal(t, TagString, h.BlockTag(y))
	assert.Equal(t, y, h.ReadField(x, 0))
}

func TestTagImmediateNonFollow(t *testing.T) {
	h := newTestHeap(t, 4*(64+2)+4*16, 16)
	roots := fakeRoots{}

	z, err := h.Allocate(roots, TagString, 2)
	require.NoError(t, err)
	h.WriteField(z, 0, 0x00000003)
	roots.ib = z

	assert.NotPanics(t, func() {
		h.Mark(roots)
		h.sweep()
	})
	assert.Equal(t, Word(0x00000003), h.ReadField(z, 0))
}

func TestOOM(t *testing.T) {
	h := newTestHeap(t, 4*(8+2)+4*16, 16)
	roots := fakeRoots{}

	var caught oomPanic
	func() {
		defer func() {
			if r := recover(); r != nil {
				var ok bool
				caught, ok = r.(oomPanic)
				require.True(t, ok, "expected an oomPanic, got %v", r)
			}
		}()
		_, _ = h.Allocate(roots, TagString, 1000)
	}()
	assert.Contains(t, caught.msg, "cannot allocate")
	assert.Contains(t, caught.msg, "1000")
}

func TestAllocateZero(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	roots := fakeRoots{}

	b, err := h.Allocate(roots, TagString, 0)
	require.NoError(t, err)
	assert.Equal(t, Word(0), h.BlockSize(b))
}

func TestGCIdempotenceOnSteadyState(t *testing.T) {
	h := newTestHeap(t, 4*(64+2)+4*16, 16)
	roots := fakeRoots{}

	x, err := h.Allocate(roots, TagString, 4)
	require.NoError(t, err)
	roots.ib = x

	h.Mark(roots)
	h.sweep()
	first := h.ReadStats()

	h.Mark(roots)
	h.sweep()
	second := h.ReadStats()

	assert.Equal(t, first.HeapWords, second.HeapWords)
	assert.Equal(t, first.FreeWords, second.FreeWords)
}

func TestTiling(t *testing.T) {
	h := newTestHeap(t, 4*(200+2)+4*16, 16)
	roots := fakeRoots{}

	for i := 0; i < 10; i++ {
		_, err := h.Allocate(roots, TagString, Word(3+i%5))
		require.NoError(t, err)
	}
	h.Mark(roots)
	h.sweep()

	var total Word
	c := h.a.heapStart + wordBytes
	for c < h.a.end() {
		size := unpackSize(h.a.word(c - wordBytes))
		total += realSize(size) + headerSize
		c += Addr(realSize(size))*wordBytes + wordBytes
	}
	assert.Equal(t, Word((h.a.end()-h.a.heapStart)/wordBytes), total)
}

func TestFreeListSoundness(t *testing.T) {
	h := newTestHeap(t, 4*(128+2)+4*16, 16)
	roots := fakeRoots{}

	for i := 0; i < 5; i++ {
		_, err := h.Allocate(roots, TagString, Word(2+i))
		require.NoError(t, err)
	}
	h.Mark(roots)
	h.sweep()

	seen := make(map[Addr]bool)
	for idx := 0; idx < numFreeClasses; idx++ {
		for b := h.fl.head[idx]; b != 0; b = h.listNext(b) {
			require.False(t, seen[b], "block %d appears in more than one free list", b)
			seen[b] = true
		}
	}
}

func TestNoAdjacentFreeBlocksPostSweep(t *testing.T) {
	h := newTestHeap(t, 4*(64+2)+4*16, 16)
	roots := fakeRoots{}

	a, err := h.Allocate(roots, TagString, 4)
	require.NoError(t, err)
	b, err := h.Allocate(roots, TagString, 4)
	require.NoError(t, err)
	_ = a
	_ = b

	h.Mark(roots) // drop both
	h.sweep()

	prevWasFree := false
	c := h.a.heapStart + wordBytes
	for c < h.a.end() {
		tag := unpackTag(h.a.word(c - wordBytes))
		size := unpackSize(h.a.word(c - wordBytes))
		if tag == TagNone {
			require.False(t, prevWasFree, "two adjacent free blocks survived a sweep")
			prevWasFree = true
		} else {
			prevWasFree = false
		}
		c += Addr(realSize(size))*wordBytes + wordBytes
	}
}

func TestNewRejectsNilFail(t *testing.T) {
	_, err := New(4096, nil)
	require.Error(t, err)
}
