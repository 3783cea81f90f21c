//go:build unix

package heap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// acquireBackingStore acquires totalWords words of anonymous, zero-filled
// memory via mmap rather than a plain Go slice, so the arena sits on its own
// mapping the way a real VM's calloc'd heap would, instead of inside the Go
// allocator's own spans.
func acquireBackingStore(totalWords int) ([]Word, error) {
	size := totalWords * int(unsafe.Sizeof(Word(0)))
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*Word)(unsafe.Pointer(&buf[0])), totalWords), nil
}

// releaseBackingStore unmaps the region acquired by acquireBackingStore.
func releaseBackingStore(words []Word) error {
	if len(words) == 0 {
		return nil
	}
	size := len(words) * int(unsafe.Sizeof(Word(0)))
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	return unix.Munmap(buf)
}
