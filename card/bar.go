package card

import (
	"sync/atomic"

	"github.com/readoutcard/rocdma/host/pmem"
)

// BAR exposes a card's memory-mapped register window as a 32-bit-indexed
// array. Reads and writes go through sync/atomic so the compiler and
// runtime cannot reorder or cache them across calls; plain loads and
// stores over an mmap'd device region are not safe to elide or coalesce.
type BAR struct {
	view *pmem.View
	u32  []uint32
}

// NewBAR wraps a mapped register window.
func NewBAR(view *pmem.View) *BAR {
	s := view.Slice
	return &BAR{view: view, u32: s.Uint32()}
}

// Len returns the number of 32-bit registers in the window.
func (b *BAR) Len() int {
	return len(b.u32)
}

// Read32 performs a volatile read of the 32-bit register at index i.
func (b *BAR) Read32(i int) uint32 {
	return atomic.LoadUint32(&b.u32[i])
}

// Write32 performs a volatile write of the 32-bit register at index i.
func (b *BAR) Write32(i int, v uint32) {
	atomic.StoreUint32(&b.u32[i], v)
}

// ByteOffsetToIndex converts a byte offset into a BAR into a register
// index, per the register map's byte = index * 4 convention.
func ByteOffsetToIndex(byteOffset int) int {
	return byteOffset / 4
}

// Close unmaps the register window.
func (b *BAR) Close() error {
	return b.view.Close()
}
