//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AttachWrite opens the named POSIX shared-memory object under
// /dev/shm and maps size bytes read+write, mirroring how the teacher
// maps io_uring SQ/CQ rings directly with golang.org/x/sys/unix: same
// mechanism, a different backing object.
func AttachWrite(name string, size uint32, baseAddr uint64) (*WriteWindow, error) {
	mem, err := attach(name, size, unix.O_RDWR, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	w := NewWriteWindow(mem, baseAddr)
	w.onClose = func() error { return Detach(mem) }
	return w, nil
}

// AttachRead opens the named POSIX shared-memory object under
// /dev/shm and maps size bytes read-only.
func AttachRead(name string, size uint32, baseAddr uint64) (*ReadWindow, error) {
	mem, err := attach(name, size, unix.O_RDONLY, unix.PROT_READ)
	if err != nil {
		return nil, err
	}
	r := NewReadWindow(mem, baseAddr)
	r.onClose = func() error { return Detach(mem) }
	return r, nil
}

func attach(name string, size uint32, openFlags int, prot int) ([]byte, error) {
	path := "/dev/shm/" + name
	fd, err := unix.Open(path, openFlags, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s (%d bytes): %w", path, size, err)
	}
	return mem, nil
}

// Detach unmaps a previously attached region.
func Detach(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}
