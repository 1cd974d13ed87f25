package pmem

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/readoutcard/rocdma/host/fs"
)

// Slice can be transparently viewed as []byte or []uint32.
type Slice []byte

// Uint32 reinterprets the slice as a []uint32, used to index a BAR register
// window 4 bytes at a time.
func (s *Slice) Uint32() []uint32 {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(s))
	header.Len /= 4
	header.Cap /= 4
	return *(*[]uint32)(unsafe.Pointer(&header))
}

// View represents a memory mapped region of a file descriptor.
//
// It is used for a card's BAR register windows (mapped from the PCI
// resource file); the DMA buffer mappings in this package call mmap
// directly and do not use View.
//
// It is not required to call Close(), the kernel will clean up on process
// shutdown.
type View struct {
	Slice
	orig []byte // Reference rounded to the lowest 4KiB page containing Slice.
}

// Close unmaps the memory from the user address space.
func (v *View) Close() error {
	return munmap(v.orig)
}

// MapFd maps size bytes of f starting at byte offset, rounded down to a 4KiB
// page boundary.
func MapFd(f *fs.File, offset int64, size int) (*View, error) {
	pageOff := int(offset & 0xFFF)
	base := offset &^ 0xFFF
	length := (size + pageOff + 0xFFF) &^ 0xFFF
	b, err := mmap(int(f.Fd()), base, length)
	if err != nil {
		return nil, fmt.Errorf("pmem: mapping fd at 0x%x failed: %v", offset, err)
	}
	return &View{Slice: b[pageOff : pageOff+size], orig: b}, nil
}
