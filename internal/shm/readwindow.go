package shm

import "fmt"

// ReadWindow is the read-only linear shared-memory region the service
// writes chunks into during a read operation. Addressing is absolute,
// as reported in WRITE messages during the read protocol.
type ReadWindow struct {
	mem      []byte
	baseAddr uint64
	size     uint32
	onClose  func() error
}

// NewReadWindow wraps an already-mapped, read-only region.
func NewReadWindow(mem []byte, baseAddr uint64) *ReadWindow {
	return &ReadWindow{mem: mem, baseAddr: baseAddr, size: uint32(len(mem))}
}

// Close unmaps the backing region, if this window owns one. Idempotent.
func (r *ReadWindow) Close() error {
	if r.onClose == nil {
		return nil
	}
	err := r.onClose()
	r.onClose = nil
	return err
}

// Read validates that [addr, addr+length) falls within the window and
// returns a copy of those bytes.
func (r *ReadWindow) Read(addr uint64, length uint64) ([]byte, error) {
	if addr < r.baseAddr || addr >= r.baseAddr+uint64(r.size) {
		return nil, fmt.Errorf("shm: read addr %#x out of range [%#x, %#x)", addr, r.baseAddr, r.baseAddr+uint64(r.size))
	}
	end := addr + length
	if end > r.baseAddr+uint64(r.size) {
		return nil, fmt.Errorf("shm: read [%#x, %#x) extends past window end %#x", addr, end, r.baseAddr+uint64(r.size))
	}
	off := addr - r.baseAddr
	out := make([]byte, length)
	copy(out, r.mem[off:off+length])
	return out, nil
}

// BaseAddr returns the window's absolute base address.
func (r *ReadWindow) BaseAddr() uint64 { return r.baseAddr }

// Size returns the window's byte capacity.
func (r *ReadWindow) Size() uint32 { return r.size }
