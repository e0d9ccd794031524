package singstorage

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/HKUST-SING/singstorage-go/internal/constants"
	"github.com/HKUST-SING/singstorage-go/internal/session"
	"github.com/HKUST-SING/singstorage-go/internal/shm"
	"github.com/HKUST-SING/singstorage-go/internal/transport"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// FakeService is a full in-memory stand-in for singd, built for exactly
// this purpose: it speaks the real control-channel protocol over a real
// UNIX domain socket, but backs both shared-memory windows with plain
// Go slices instead of /dev/shm, so a test process can run both ends of
// a session without root, a kernel module, or a real singd binary.
//
// A FakeService serves one session's worth of protocol state per
// connection: admission, write-chunk streaming, and the read-chunk
// cursor are all scoped to the connection goroutine in ServeConn, the
// one exception being the object store and deny lists, which are
// shared across connections and guarded by mu.
type FakeService struct {
	mu sync.Mutex

	listener net.Listener

	objects           map[string][]byte
	deniedPaths       map[string]bool
	deniedUsers       map[string]bool
	unknownWritePaths map[string]bool
	corruptReadPaths  map[string]bool

	writeWindowSize uint32
	readWindowSize  uint32
	writeMem        []byte
	readMem         []byte
	baseWriteAddr   uint64
	baseReadAddr    uint64
	readChunkSize   int

	connections int
	writes      int
	reads       int
	deletes     int
}

// NewFakeService constructs a FakeService with the given shared-memory
// window sizes, unconnected and with an empty object store.
func NewFakeService(writeWindowSize, readWindowSize uint32) *FakeService {
	return &FakeService{
		objects:           make(map[string][]byte),
		deniedPaths:       make(map[string]bool),
		deniedUsers:       make(map[string]bool),
		unknownWritePaths: make(map[string]bool),
		corruptReadPaths:  make(map[string]bool),
		writeWindowSize: writeWindowSize,
		readWindowSize:  readWindowSize,
		writeMem:        make([]byte, writeWindowSize),
		readMem:         make([]byte, readWindowSize),
		baseWriteAddr:   0x10000,
		baseReadAddr:    0x20000,
		readChunkSize:   constants.MaxOpSize,
	}
}

// Listen starts accepting connections on the given UNIX socket path,
// handling each on its own goroutine. Used by integration tests that
// exercise a real transport.Dial instead of net.Pipe.
func (f *FakeService) Listen(address string) error {
	l, err := net.Listen("unix", address)
	if err != nil {
		return fmt.Errorf("fakeservice: listen: %w", err)
	}
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
	go f.acceptLoop(l)
	return nil
}

func (f *FakeService) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go f.ServeConn(conn)
	}
}

// Close stops accepting new connections. Already-accepted connections
// run to their own completion.
func (f *FakeService) Close() error {
	f.mu.Lock()
	l := f.listener
	f.listener = nil
	f.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}

// Attachers returns the shared-memory attach functions a test's
// session.ConnectWithAttachers call should inject in place of
// shm.AttachWrite/shm.AttachRead, wrapping this FakeService's in-memory
// windows instead of mapping /dev/shm.
func (f *FakeService) Attachers() (session.AttachWriteFunc, session.AttachReadFunc) {
	attachWrite := func(name string, size uint32, baseAddr uint64) (*shm.WriteWindow, error) {
		return shm.NewWriteWindow(f.writeMem, baseAddr), nil
	}
	attachRead := func(name string, size uint32, baseAddr uint64) (*shm.ReadWindow, error) {
		return shm.NewReadWindow(f.readMem, baseAddr), nil
	}
	return attachWrite, attachRead
}

// PutObject preseeds the object store, for read-path test setup.
func (f *FakeService) PutObject(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.objects[path] = cp
}

// Object returns the current bytes stored at path, for write-path test
// assertions.
func (f *FakeService) Object(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	return data, ok
}

// DenyPath makes every subsequent write, read, or delete against path
// fail with StatusErrDeny, regardless of whether an object exists there.
func (f *FakeService) DenyPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deniedPaths[path] = true
}

// DenyUser makes a subsequent AUTH from this user fail with
// StatusErrAuthUser.
func (f *FakeService) DenyUser(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deniedUsers[name] = true
}

// RejectWritePath makes a subsequent write admission against path fail
// with StatusErrPath, as singd does for a path outside the caller's
// registered namespace.
func (f *FakeService) RejectWritePath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unknownWritePaths[path] = true
}

// CorruptNextReadChunk makes the first chunk of the next read against
// path report a mem_addr outside the read window's bounds, exercising
// the client's out-of-range defense.
func (f *FakeService) CorruptNextReadChunk(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corruptReadPaths[path] = true
}

// Stats returns the running connection/operation counters, for
// assertions that a scenario exercised the path it claimed to.
func (f *FakeService) Stats() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]int{
		"connections": f.connections,
		"writes":      f.writes,
		"reads":       f.reads,
		"deletes":     f.deletes,
	}
}

// readCursor tracks how much of an object a read stream has delivered
// so far, keyed by the read operation's transaction id (stable across
// every Next call per spec.md §4.6).
type readCursor struct {
	data   []byte
	offset int
}

// ServeConn runs the full session protocol against one already-accepted
// connection: AUTH/CON_REPLY handshake, then a loop dispatching
// WRITE/READ/DELETE/CLOSE requests until the connection closes.
func (f *FakeService) ServeConn(conn net.Conn) {
	defer conn.Close()
	tc := transport.NewConn(conn)

	hdr, msg, err := readFrame(conn)
	if err != nil {
		return
	}
	auth, ok := msg.(*wire.AuthMsg)
	if !ok {
		return
	}

	f.mu.Lock()
	denied := f.deniedUsers[auth.Name]
	f.mu.Unlock()
	if denied {
		tc.Send(hdr.ID, &wire.StatusMsg{Status: wire.StatusErrAuthUser})
		return
	}

	var writeName, readName [32]byte
	copy(writeName[:], "singfake-write")
	copy(readName[:], "singfake-read")
	if err := tc.Send(hdr.ID, &wire.ConReplyMsg{
		WriteAddr: f.baseWriteAddr,
		WriteSize: f.writeWindowSize,
		ReadAddr:  f.baseReadAddr,
		ReadSize:  f.readWindowSize,
		WriteName: writeName,
		ReadName:  readName,
	}); err != nil {
		return
	}

	f.mu.Lock()
	f.connections++
	f.mu.Unlock()

	cursors := make(map[uint32]*readCursor)

	for {
		hdr, msg, err := readFrame(conn)
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case *wire.CloseMsg:
			tc.Send(hdr.ID, &wire.StatusMsg{Status: wire.StatusClose})
			return

		case *wire.DeleteMsg:
			f.handleDelete(tc, hdr.ID, m)

		case *wire.WriteMsg:
			if m.PropBitmap != 1 {
				continue // a stray data chunk outside serveWriteChunks; ignore
			}
			if !f.handleWriteAdmission(tc, hdr.ID, m) {
				continue
			}
			if err := f.serveWriteChunks(conn, tc, m.Path, m.DataLength); err != nil {
				return
			}

		case *wire.ReadMsg:
			if m.PropBitmap == 1 {
				f.handleReadAdmission(tc, hdr.ID, m.Path, cursors)
				continue
			}
			if cursor, ok := cursors[hdr.ID]; ok {
				f.sendNextChunk(tc, hdr.ID, m.Path, cursor, cursors)
			}
			// else: the stream's final ack-only send after the terminal
			// chunk, already cleaned up in sendNextChunk; nothing to do.
		}
	}
}

func (f *FakeService) handleWriteAdmission(tc *transport.Conn, id uint32, m *wire.WriteMsg) bool {
	f.mu.Lock()
	denied := f.deniedPaths[m.Path]
	unknown := f.unknownWritePaths[m.Path]
	f.mu.Unlock()

	switch {
	case unknown:
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrPath})
		return false
	case denied:
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrDeny})
		return false
	}
	tc.Send(id, &wire.ReadMsg{Path: m.Path, PropBitmap: 0})
	return true
}

// serveWriteChunks reads total bytes worth of WRITE chunks off conn,
// acknowledging each one (alternating READ and RELEASE acks to exercise
// both forms, per spec.md §9 Open Question 1) and assembling the full
// object before storing it.
func (f *FakeService) serveWriteChunks(conn net.Conn, tc *transport.Conn, path string, total uint64) error {
	buf := make([]byte, 0, total)
	var received uint64
	var chunkNum int

	for received < total {
		hdr, msg, err := readFrame(conn)
		if err != nil {
			return err
		}
		chunk, ok := msg.(*wire.WriteMsg)
		if !ok {
			return fmt.Errorf("fakeservice: expected WRITE chunk, got %T", msg)
		}

		off := chunk.MemAddr - f.baseWriteAddr
		data := make([]byte, chunk.DataLength)
		copy(data, f.writeMem[off:off+chunk.DataLength])
		buf = append(buf, data...)
		received += chunk.DataLength

		if received >= total {
			// Store before the final ack, so the object is visible by the
			// time the client's Write returns.
			f.mu.Lock()
			f.objects[path] = buf
			f.writes++
			f.mu.Unlock()
		}

		if chunkNum%2 == 0 {
			tc.Send(hdr.ID, &wire.ReleaseMsg{Path: path, MergeID: hdr.ID})
		} else {
			tc.Send(hdr.ID, &wire.ReadMsg{Path: path, PropBitmap: 0})
		}
		chunkNum++
	}

	if total == 0 {
		f.mu.Lock()
		f.objects[path] = buf
		f.writes++
		f.mu.Unlock()
	}
	return nil
}

func (f *FakeService) handleReadAdmission(tc *transport.Conn, id uint32, path string, cursors map[uint32]*readCursor) {
	f.mu.Lock()
	denied := f.deniedPaths[path]
	data, exists := f.objects[path]
	corrupt := f.corruptReadPaths[path]
	if corrupt {
		delete(f.corruptReadPaths, path)
	}
	if exists {
		f.reads++
	}
	f.mu.Unlock()

	if denied {
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrDeny})
		return
	}
	if !exists {
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrPath})
		return
	}

	if corrupt {
		tc.Send(id, &wire.WriteMsg{
			Path:       path,
			MemAddr:    f.baseReadAddr + uint64(f.readWindowSize) + 0x1000,
			DataLength: 8,
		})
		return
	}

	cursor := &readCursor{data: data}
	cursors[id] = cursor
	f.sendNextChunk(tc, id, path, cursor, cursors)
}

// sendNextChunk writes the cursor's next slice of data into the shared
// read window and replies with its address, or replies with the
// terminal zero-length chunk once the object is exhausted.
func (f *FakeService) sendNextChunk(tc *transport.Conn, id uint32, path string, cursor *readCursor, cursors map[uint32]*readCursor) {
	remaining := len(cursor.data) - cursor.offset
	if remaining <= 0 {
		tc.Send(id, &wire.WriteMsg{Path: path, MemAddr: 0, DataLength: 0})
		delete(cursors, id)
		return
	}

	n := remaining
	if n > f.readChunkSize {
		n = f.readChunkSize
	}
	if n > len(f.readMem) {
		n = len(f.readMem)
	}
	copy(f.readMem[:n], cursor.data[cursor.offset:cursor.offset+n])
	tc.Send(id, &wire.WriteMsg{Path: path, MemAddr: f.baseReadAddr, DataLength: uint64(n)})
	cursor.offset += n
}

func (f *FakeService) handleDelete(tc *transport.Conn, id uint32, m *wire.DeleteMsg) {
	f.mu.Lock()
	denied := f.deniedPaths[m.Path]
	_, exists := f.objects[m.Path]
	if !denied && exists {
		delete(f.objects, m.Path)
	}
	f.deletes++
	f.mu.Unlock()

	switch {
	case denied:
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrDeny})
	case !exists:
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusErrPath})
	default:
		tc.Send(id, &wire.StatusMsg{Status: wire.StatusSuccess})
	}
}

// readFrame decodes one frame directly off conn, bypassing
// transport.Conn.Recv's expected-type filtering: the service's main
// loop dispatches on whatever type arrives rather than expecting one
// particular reply, unlike the client's protocol state machines.
func readFrame(conn net.Conn) (wire.Header, wire.Message, error) {
	hdrBytes := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(conn, hdrBytes); err != nil {
		return wire.Header{}, nil, err
	}
	h, err := wire.DecodeHeader(hdrBytes)
	if err != nil {
		return wire.Header{}, nil, err
	}

	body := make([]byte, 0)
	if h.Length > wire.HeaderSize {
		body = make([]byte, h.Length-wire.HeaderSize)
		if _, err := io.ReadFull(conn, body); err != nil {
			return h, nil, err
		}
	}

	msg, err := wire.Decode(h.Type, body)
	if err != nil {
		return h, nil, err
	}
	return h, msg, nil
}
