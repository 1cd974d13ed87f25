package channel

import (
	"fmt"
	"path/filepath"

	"github.com/readoutcard/rocdma/params"
)

// vendorTag names the lock/mutex/FIFO file family.
const vendorTag = "AliceO2_RoC"

// SharedMemDir and HugePageDir back the channel lock, named-mutex marker
// and (for model A) ReadyFIFO files. They are vars, not consts, so tests
// can point them at a scratch directory instead of the real host paths
// (mirroring syspci.Root's test-seam pattern).
var (
	SharedMemDir  = "/dev/shm"
	HugePageDir   = "/var/lib/hugetlbfs/global/pagesize-2MB"
	HugePageDir1G = "/var/lib/hugetlbfs/global/pagesize-1GB"
)

func channelTag(pci params.PciAddress, channelNumber int) string {
	return fmt.Sprintf("%s_%s_Channel_%d", vendorTag, pci, channelNumber)
}

// LockPath is the file-lock path for one (pci, channel) identity.
func LockPath(pci params.PciAddress, channelNumber int) string {
	return filepath.Join(SharedMemDir, channelTag(pci, channelNumber)+".lock")
}

// MutexPath is the named-mutex stand-in file for the same identity. Go
// has no cross-process named-mutex primitive; a second file, locked by a
// mechanism that (unlike flock) survives its owner crashing, plays that
// role (see lock.go).
func MutexPath(pci params.PciAddress, channelNumber int) string {
	return filepath.Join(SharedMemDir, channelTag(pci, channelNumber)+"_Mutex")
}

// ReadyFifoPath is model A's 128-entry ReadyFIFO backing file.
func ReadyFifoPath(pci params.PciAddress, channelNumber int) string {
	return filepath.Join(HugePageDir, fmt.Sprintf("%s-fifo-%s-%d", vendorTag, pci, channelNumber))
}

// StatusTablePath is model B's descriptor-status-word table backing
// file, the B analogue of A's ReadyFIFO, named the same way.
func StatusTablePath(pci params.PciAddress, channelNumber int) string {
	return filepath.Join(HugePageDir, fmt.Sprintf("%s-status-%s-%d", vendorTag, pci, channelNumber))
}

// BufferFilePath picks the hugetlbfs mount for a channel buffer file of
// the given size: the 1 GiB-page mount when the size is a whole number of
// 1 GiB pages, the 2 MiB-page mount otherwise. Both mounts are assumed to
// exist (created by the operator).
func BufferFilePath(pci params.PciAddress, channelNumber, size int) string {
	dir := HugePageDir
	if size > 0 && size%(1<<30) == 0 {
		dir = HugePageDir1G
	}
	return filepath.Join(dir, fmt.Sprintf("%s-buffer-%s-%d", vendorTag, pci, channelNumber))
}
