package buffer

import (
	"github.com/readoutcard/rocdma/host/pmem"
	"github.com/readoutcard/rocdma/rocerr"
)

// PageAddr is one (userspace, bus) address pair at page_size stride,
// as used to arm engine A's initial descriptor slots.
type PageAddr struct {
	UserAddr uintptr
	BusAddr  uint64
}

// Partition splits an SGL into a FIFO reservation of the first fifoSize
// bytes (returned as a single (userspace, bus) pair) and the list of page
// addresses for the remainder of the buffer at pageSize stride, in SGL
// order. Every SGL entry must be at least pmem.HugePageSize long, per the
// buffer-region invariant; a shorter entry is reported as
// SglEntryTooSmall rather than silently skipped.
func Partition(sgl []pmem.Region, fifoSize, pageSize int) (fifoUser uintptr, fifoBus uint64, pages []PageAddr, err error) {
	if len(sgl) == 0 {
		return 0, 0, nil, rocerr.New(rocerr.BadParameter, "empty scatter-gather list")
	}
	for i, r := range sgl {
		if r.Len < pmem.HugePageSize {
			return 0, 0, nil, rocerr.New(rocerr.SglEntryTooSmall, "SGL entry %d is %d bytes, want >= %d", i, r.Len, pmem.HugePageSize)
		}
	}
	first := sgl[0]
	if first.Len < fifoSize {
		return 0, 0, nil, rocerr.New(rocerr.BufferTooSmall, "first SGL entry (%d bytes) is smaller than the FIFO reservation (%d bytes)", first.Len, fifoSize)
	}
	fifoUser = first.UserAddr
	fifoBus = first.BusAddr

	for i, r := range sgl {
		start := 0
		if i == 0 {
			start = fifoSize
		}
		for off := start; off+pageSize <= r.Len; off += pageSize {
			pages = append(pages, PageAddr{
				UserAddr: r.UserAddr + uintptr(off),
				BusAddr:  r.BusAddr + uint64(off),
			})
		}
	}
	return fifoUser, fifoBus, pages, nil
}
