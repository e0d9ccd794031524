// Package session implements the singstorage session: the handshake,
// the per-path/per-window admission scheduler, and the write/read/
// delete protocol state machines that run against an authenticated
// control channel and its two shared-memory windows.
package session

import (
	"bytes"
	"context"

	"github.com/HKUST-SING/singstorage-go/internal/constants"
	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/logging"
	"github.com/HKUST-SING/singstorage-go/internal/shm"
	"github.com/HKUST-SING/singstorage-go/internal/transport"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// Session is a live connection to singd: an authenticated control
// channel plus the two attached shared-memory windows, guarded by a
// Dispatcher. A Session is connected (Dispatcher != nil, windows
// attached) only once the full handshake has succeeded end to end —
// the source's early "connected" flag, set before authentication
// completes, is a bug this implementation does not reproduce.
type Session struct {
	conn       *transport.Conn
	dispatcher *Dispatcher
	connected  bool
}

// Connect opens a session against the real singd control socket and
// POSIX shared-memory windows.
func Connect(ctx context.Context, address string, user string, digest [32]byte) (*Session, error) {
	return connect(ctx, address, user, digest, shm.AttachWrite, shm.AttachRead)
}

// connect runs the handshake of §4.4: open the control transport, send
// AUTH, receive either CON_REPLY or a failing STATUS, attach both
// shared-memory windows on success, and only then construct the
// dispatcher and mark the session connected. attachWrite/attachRead are
// injected so tests can substitute in-process fakes for /dev/shm.
func connect(ctx context.Context, address string, user string, digest [32]byte, attachWrite attachWriteFunc, attachRead attachReadFunc) (*Session, error) {
	conn, err := transport.Dial(ctx, address)
	if err != nil {
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntIPC, Inner: err}
	}

	if err := conn.Send(0, &wire.AuthMsg{Name: user, Digest: digest}); err != nil {
		conn.Close()
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntIPC, Inner: err}
	}

	reply, _, err := conn.Recv(wire.TypeConReply)
	if err != nil {
		conn.Close()
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntIPC, Inner: err}
	}

	if status, ok := reply.(*wire.StatusMsg); ok {
		conn.Close()
		switch status.Status {
		case wire.StatusErrAuthUser, wire.StatusErrAuthPass:
			return nil, &errs.AuthError{Op: "connect", Status: status.Status}
		default:
			return nil, &errs.InternalError{Op: "connect", Kind: errs.IntUnknown}
		}
	}

	conReply, ok := reply.(*wire.ConReplyMsg)
	if !ok {
		conn.Close()
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntProtocol}
	}

	writeName := trimName(conReply.WriteName[:])
	readName := trimName(conReply.ReadName[:])

	writeWindow, err := attachWrite(writeName, conReply.WriteSize, conReply.WriteAddr)
	if err != nil {
		conn.Close()
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntMemory, Inner: err}
	}
	readWindow, err := attachRead(readName, conReply.ReadSize, conReply.ReadAddr)
	if err != nil {
		conn.Close()
		return nil, &errs.InternalError{Op: "connect", Kind: errs.IntMemory, Inner: err}
	}

	dispatcher := NewDispatcher(conn, writeWindow, readWindow)
	logging.Default().Debug("session connected", "write_window", writeName, "read_window", readName)

	return &Session{conn: conn, dispatcher: dispatcher, connected: true}, nil
}

type attachWriteFunc func(name string, size uint32, baseAddr uint64) (*shm.WriteWindow, error)
type attachReadFunc func(name string, size uint32, baseAddr uint64) (*shm.ReadWindow, error)

// AttachWriteFunc and AttachReadFunc are the public names of the
// attacher function types, for test harnesses that substitute
// in-process fakes for /dev/shm.
type AttachWriteFunc = attachWriteFunc
type AttachReadFunc = attachReadFunc

// ConnectWithAttachers is Connect with the shared-memory attach
// functions injected, used by the in-process FakeService test harness
// in place of real /dev/shm mappings.
func ConnectWithAttachers(ctx context.Context, address string, user string, digest [32]byte, attachWrite AttachWriteFunc, attachRead AttachReadFunc) (*Session, error) {
	return connect(ctx, address, user, digest, attachWrite, attachRead)
}

func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Connected reports whether the handshake completed successfully and
// the session has not since been closed.
func (s *Session) Connected() bool { return s.connected }

// Write runs the write protocol for path against this session's
// dispatcher.
func (s *Session) Write(path string, data []byte) error {
	return s.dispatcher.ExecuteWrite(path, data)
}

// Read runs the read protocol's initiation phase and returns the
// resulting lazy chunk stream.
func (s *Session) Read(path string) (*ReadStream, error) {
	return s.dispatcher.ExecuteRead(path)
}

// Delete runs the delete protocol for path.
func (s *Session) Delete(path string) error {
	return s.dispatcher.ExecuteDelete(path)
}

// Close tears down the dispatcher, both shared-memory windows, and the
// control channel. Idempotent; never returns an error.
func (s *Session) Close() {
	if !s.connected {
		return
	}
	s.connected = false
	s.dispatcher.CloseAll()
}

// MaxOpSize is re-exported for callers that want to size read buffers;
// mirrors the reference implementation's "ten pages" default.
const MaxOpSize = constants.MaxOpSize
