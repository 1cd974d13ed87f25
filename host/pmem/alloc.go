package pmem

import (
	"fmt"
	"os"
	"reflect"
	"unsafe"

	"github.com/readoutcard/rocdma/host/fs"
)

// HugePageSize is the minimum scatter-gather entry length DMA buffer
// regions are required to be built from (2 MiB huge pages).
const HugePageSize = 2 * 1024 * 1024

// Region is one scatter-gather list entry: a contiguous run of physical
// (here: bus) memory backing a contiguous run of userspace addresses.
type Region struct {
	UserAddr uintptr
	BusAddr  uint64
	Len      int
}

// Mapping is a DMA-registered region of host memory together with its
// scatter-gather list.
type Mapping struct {
	data []byte
	sgl  []Region
	file *fs.File // non-nil for a File-backed mapping; owns the fd.
}

// Bytes returns the raw userspace view of the mapped region.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// SGL returns the scatter-gather list backing this mapping.
func (m *Mapping) SGL() []Region {
	return m.sgl
}

// Close unregisters the mapping, unmapping file-backed regions. Anonymous
// (client-supplied) mappings are left alone; the caller owns that memory.
func (m *Mapping) Close() error {
	if m.file == nil {
		return nil
	}
	_ = munlock(m.data)
	if err := munmap(m.data); err != nil {
		return err
	}
	return m.file.Close()
}

// MapFile memory-maps a (created or existing) hugetlbfs-backed file of the
// given size, locks it into physical memory and builds its scatter-gather
// list. size must be a multiple of HugePageSize.
func MapFile(path string, size int) (*Mapping, error) {
	if size <= 0 || size%HugePageSize != 0 {
		return nil, fmt.Errorf("pmem: file buffer size must be a multiple of %d bytes", HugePageSize)
	}
	f, err := fs.Open(path, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, fmt.Errorf("pmem: opening %s: %v", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pmem: truncating %s to %d: %v", path, size, err)
	}
	b, err := mmap(int(f.Fd()), 0, size)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pmem: mapping %s: %v", path, err)
	}
	for i := range b {
		b[i] = 0
	}
	if err := mlock(b); err != nil {
		_ = munmap(b)
		_ = f.Close()
		return nil, fmt.Errorf("pmem: locking %s: %v", path, err)
	}
	sgl, err := buildSGL(b)
	if err != nil {
		_ = munlock(b)
		_ = munmap(b)
		_ = f.Close()
		return nil, err
	}
	return &Mapping{data: b, sgl: sgl, file: f}, nil
}

// RegisterMemory registers a client-supplied, already-mapped region for DMA
// by walking its physical pages and building its scatter-gather list.
func RegisterMemory(b []byte) (*Mapping, error) {
	sgl, err := buildSGL(b)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: b, sgl: sgl}, nil
}

// buildSGL walks the virtual-to-physical mapping of b one 4KiB OS page at a
// time and merges contiguous runs into scatter-gather entries.
func buildSGL(b []byte) ([]Region, error) {
	if len(b) == 0 || len(b)%pageSize != 0 {
		return nil, fmt.Errorf("pmem: region of %d bytes is not page aligned", len(b))
	}
	base := dataPtr(b)
	var sgl []Region
	for off := 0; off < len(b); off += pageSize {
		bus, err := ReadPageMap(base + uintptr(off))
		if err != nil {
			return nil, fmt.Errorf("pmem: resolving bus address at offset %d: %v", off, err)
		}
		if n := len(sgl); n > 0 {
			last := &sgl[n-1]
			if last.BusAddr+uint64(last.Len) == bus {
				last.Len += pageSize
				continue
			}
		}
		sgl = append(sgl, Region{UserAddr: base + uintptr(off), BusAddr: bus, Len: pageSize})
	}
	return sgl, nil
}

func dataPtr(b []byte) uintptr {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&b))
	return header.Data
}
