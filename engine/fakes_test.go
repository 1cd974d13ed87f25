package engine

import (
	"time"

	"github.com/readoutcard/rocdma/card"
	"github.com/readoutcard/rocdma/host/pmem"
)

// fakeBAR returns a register window backed by plain memory, large enough
// to exercise either family's register indexes without hitting real
// hardware.
func fakeBAR(words int) *card.BAR {
	view := &pmem.View{Slice: make(pmem.Slice, words*4)}
	return card.NewBAR(view)
}

// fakeBuffer is a minimal buffer.Provider backed by a plain byte slice,
// standing in for the client's DMA-registered region in engine tests: bus
// addresses are just offset+base, there being no real IOMMU to translate
// through.
type fakeBuffer struct {
	data []byte
	base uint64
}

func newFakeBuffer(size int) *fakeBuffer {
	return &fakeBuffer{data: make([]byte, size), base: 0x40000000}
}

func (f *fakeBuffer) Address() uintptr      { return 0 }
func (f *fakeBuffer) Size() int             { return len(f.data) }
func (f *fakeBuffer) Bytes() []byte         { return f.data }
func (f *fakeBuffer) SGL() []pmem.Region    { return nil }
func (f *fakeBuffer) BusOffset(offset int) (uint64, error) {
	return f.base + uint64(offset), nil
}
func (f *fakeBuffer) Close() error { return nil }

// fifoWords returns a backing slice large enough for n (length,status)
// slot pairs, standing in for the hugetlbfs-mapped ReadyFIFO/status table
// the real constructors map from a file.
func fifoWords(n int) []uint32 {
	return make([]uint32, n*2)
}

func noSleep(d time.Duration) {}
