package pmem

import "golang.org/x/sys/unix"

func mmap(fd int, offset int64, length int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}

func mlock(b []byte) error {
	return unix.Mlock(b)
}

func munlock(b []byte) error {
	return unix.Munlock(b)
}
