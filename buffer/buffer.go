// Package buffer presents a client-supplied memory region or a
// huge-page-backed file as one DMA-registered buffer: a userspace base,
// a total size, a scatter-gather list, and an offset-to-bus-address
// translation.
package buffer

import (
	"reflect"
	"unsafe"

	"github.com/readoutcard/rocdma/host/pmem"
	"github.com/readoutcard/rocdma/rocerr"
)

// Provider is implemented by all three buffer variants (Null, Memory,
// File).
type Provider interface {
	// Address is the userspace base address of the buffer, 0 for Null.
	Address() uintptr
	// Size is the total buffer length in bytes, 0 for Null.
	Size() int
	// Bytes is the raw userspace view of the buffer, nil for Null.
	Bytes() []byte
	// SGL is the scatter-gather list backing the buffer.
	SGL() []pmem.Region
	// BusOffset translates a buffer-relative byte offset to a bus
	// address. It is the hot function called on every push.
	BusOffset(offset int) (uint64, error)
	// Close releases the buffer's DMA registration.
	Close() error
}

// Null is the no-buffer variant, used before a channel's buffer is
// configured or for channels that never push data.
type Null struct{}

func (Null) Address() uintptr { return 0 }
func (Null) Size() int        { return 0 }
func (Null) Bytes() []byte    { return nil }
func (Null) SGL() []pmem.Region {
	return nil
}
func (Null) BusOffset(int) (uint64, error) {
	return 0, rocerr.New(rocerr.BadParameter, "no buffer configured")
}
func (Null) Close() error { return nil }

var _ Provider = Null{}

// mapped is the shared implementation behind Memory and File: both are
// just a pmem.Mapping with its SGL, differing only in how the mapping was
// obtained and who owns unmapping it on Close.
type mapped struct {
	m *pmem.Mapping
}

func (p *mapped) Address() uintptr {
	return dataAddr(p.m.Bytes())
}

func (p *mapped) Size() int {
	return len(p.m.Bytes())
}

func (p *mapped) Bytes() []byte {
	return p.m.Bytes()
}

func (p *mapped) SGL() []pmem.Region {
	return p.m.SGL()
}

func (p *mapped) BusOffset(offset int) (uint64, error) {
	return busOffset(p.m.SGL(), offset)
}

func (p *mapped) Close() error {
	return p.m.Close()
}

// Memory is the client-supplied-region variant: the caller already mapped
// and owns the memory, this just registers it for DMA.
type Memory struct {
	mapped
}

// NewMemory registers an existing, page-aligned buffer for DMA.
func NewMemory(b []byte) (*Memory, error) {
	if len(b) == 0 || len(b)%pmem.HugePageSize != 0 {
		return nil, rocerr.New(rocerr.BufferTooSmall, "Memory buffer of %d bytes is not a multiple of %d", len(b), pmem.HugePageSize)
	}
	m, err := pmem.RegisterMemory(b)
	if err != nil {
		return nil, rocerr.Wrap(err, rocerr.DmaRegistrationFailed, "registering memory buffer")
	}
	return &Memory{mapped{m: m}}, nil
}

var _ Provider = &Memory{}

// File is the huge-page-backed-file variant.
type File struct {
	mapped
}

// NewFile creates (or reuses) a hugetlbfs-backed file of the given size,
// maps it and registers it for DMA.
func NewFile(path string, size int) (*File, error) {
	if size <= 0 || size%pmem.HugePageSize != 0 {
		return nil, rocerr.New(rocerr.BufferTooSmall, "File buffer of %d bytes is not a multiple of %d", size, pmem.HugePageSize)
	}
	m, err := pmem.MapFile(path, size)
	if err != nil {
		return nil, rocerr.Wrap(err, rocerr.DmaRegistrationFailed, "registering file buffer %s", path)
	}
	return &File{mapped{m: m}}, nil
}

var _ Provider = &File{}

// busOffset walks the SGL until it finds the entry containing offset,
// then returns that entry's bus address plus the intra-entry
// displacement. For the common 1-2 entry (IOMMU-enabled) case the first
// comparison usually resolves it.
func busOffset(sgl []pmem.Region, offset int) (uint64, error) {
	if offset < 0 {
		return 0, rocerr.New(rocerr.BadParameter, "negative offset %d", offset)
	}
	acc := 0
	for _, r := range sgl {
		if offset < acc+r.Len {
			return r.BusAddr + uint64(offset-acc), nil
		}
		acc += r.Len
	}
	return 0, rocerr.New(rocerr.BadParameter, "offset %d exceeds buffer size %d", offset, acc)
}

func dataAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return (*(*reflect.SliceHeader)(unsafe.Pointer(&b))).Data
}
