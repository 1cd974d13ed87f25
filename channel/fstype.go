package channel

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/readoutcard/rocdma/rocerr"
)

// Filesystem magic numbers (linux/magic.h) for the two backing stores
// Open step 3 requires: tmpfs for the shared-memory lock/FIFO directory,
// hugetlbfs for the huge-page buffer/FIFO directory.
const (
	tmpfsMagic     = 0x01021994
	hugetlbfsMagic = 0x958458f6
)

// CheckFilesystemType gates the statfs assertion below. Setting it to
// false skips the check, for SharedMemDir/HugePageDir pointed at a
// scratch directory that is neither tmpfs nor hugetlbfs.
var CheckFilesystemType = true

// ensureDir creates path if missing and, unless disabled, asserts it is
// backed by the filesystem type the caller expects.
func ensureDir(path string, wantMagic int64) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return rocerr.Wrap(err, rocerr.BadParameter, "creating %s", path)
	}
	if !CheckFilesystemType {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return rocerr.Wrap(err, rocerr.BadParameter, "statfs %s", path)
	}
	if int64(st.Type) != wantMagic {
		return rocerr.New(rocerr.BadParameter, "%s is not backed by the expected filesystem (type 0x%x, want 0x%x)", path, int64(st.Type), wantMagic)
	}
	return nil
}
