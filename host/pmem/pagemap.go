package pmem

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/readoutcard/rocdma/host/fs"
)

const pageSize = 4096

// ReadPageMap reads the physical page-frame number backing a virtual page
// address from /proc/self/pagemap.
//
// It returns the physical address of the start of the 4KiB page within
// which virtAddr lies. The meaning of the raw 64-bit value is documented at
// https://www.kernel.org/doc/Documentation/vm/pagemap.txt
func ReadPageMap(virtAddr uintptr) (uint64, error) {
	raw, err := readPageMapEntry(virtAddr)
	if err != nil {
		return 0, err
	}
	if raw&(1<<63) == 0 {
		return 0, fmt.Errorf("pmem: 0x%08x has no physical address", virtAddr)
	}
	// Bits 54:0 are the page-frame number; strip the flag bits above it.
	raw &^= 0x1FF << 55
	return raw * pageSize, nil
}

//

var (
	mu         sync.Mutex
	pageMap    *fs.File
	pageMapErr error
)

func readPageMapEntry(virtAddr uintptr) (uint64, error) {
	var b [8]byte
	mu.Lock()
	defer mu.Unlock()
	if pageMap == nil && pageMapErr == nil {
		// /proc/self/pagemap is a uint64 array where the index is the virtual
		// 4KiB page number and the value is the physical page entry backing it.
		pageMap, pageMapErr = fs.Open("/proc/self/pagemap", os.O_RDONLY)
	}
	if pageMapErr != nil {
		return 0, pageMapErr
	}
	offset := int64(virtAddr / pageSize * 8)
	n, err := pageMap.ReadAt(b[:], offset)
	if err != nil {
		return 0, fmt.Errorf("pmem: failed to read at 0x%x for 0x%x: %v", offset, virtAddr, err)
	}
	if n != len(b) {
		return 0, fmt.Errorf("pmem: short read of pagemap entry for 0x%x", virtAddr)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
