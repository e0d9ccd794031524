package session

import (
	"errors"

	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

var errStreamFailed = errors.New("session: read stream already failed")

// ReadStream is the restartable-per-pull lazy sequence of byte chunks a
// read operation produces. Total size is not known in advance; the
// caller drives the protocol forward one Next call at a time, matching
// spec's "avoid coroutines" guidance for this otherwise-synchronous
// design. An acknowledgement for the chunk just returned is deferred
// until the following pull, since the wire protocol folds "ack
// previous" and "request next" into the same outgoing READ message.
type ReadStream struct {
	d       *Dispatcher
	path    string
	primary TxID
	pending *wire.WriteMsg
	done    bool
	failed  bool
}

// ExecuteRead runs the read operation's initiation phase (§4.6) against
// an admitted read window and, on success, returns a ReadStream the
// caller pulls chunks from via Next.
func (d *Dispatcher) ExecuteRead(path string) (*ReadStream, error) {
	if err := d.acquire(path, windowRead); err != nil {
		return nil, err
	}

	primary := d.nextID()
	stream := &ReadStream{d: d, path: path, primary: primary}

	if err := d.conn.Send(uint32(primary), &wire.ReadMsg{Path: path, PropBitmap: 1}); err != nil {
		stream.abort()
		return nil, &errs.InternalError{Op: "read", Kind: errs.IntIPC, Inner: err}
	}

	reply, hdr, err := d.conn.Recv(wire.TypeWrite)
	if err != nil {
		stream.abort()
		return nil, &errs.InternalError{Op: "read", Kind: errs.IntIPC, Inner: err}
	}

	if status, ok := reply.(*wire.StatusMsg); ok {
		stream.abort()
		switch status.Status {
		case wire.StatusErrPath:
			return nil, &errs.PathNotFoundError{Op: "read", Path: path}
		case wire.StatusErrDeny:
			return nil, &errs.PathDeniedError{Op: "read", Path: path}
		default:
			return nil, &errs.InternalError{Op: "read", Kind: errs.IntUnknown}
		}
	}

	write, ok := reply.(*wire.WriteMsg)
	if !ok || TxID(hdr.ID) != primary {
		stream.abort()
		return nil, &errs.InternalError{Op: "read", Kind: errs.IntProtocol}
	}
	if write.Path != path {
		d.conn.Send(uint32(primary), &wire.StatusMsg{Status: wire.StatusErrContent})
		stream.abort()
		return nil, &errs.ProtocolError{Op: "read", Status: wire.StatusErrContent, Message: "unexpected path in first chunk"}
	}

	stream.pending = write
	return stream, nil
}

// Next pulls the next chunk. It returns (data, false, nil) for a data
// chunk, (nil, true, nil) once the terminal chunk has been consumed, or
// a non-nil error if the protocol could not continue. Calling Next
// again after (nil, true, nil) or an error is a no-op returning the
// same terminal/error state.
func (s *ReadStream) Next() ([]byte, bool, error) {
	if s.done {
		return nil, true, nil
	}
	if s.failed {
		return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntProtocol, Inner: errStreamFailed}
	}

	write := s.pending
	s.pending = nil

	if write == nil {
		if err := s.d.conn.Send(uint32(s.primary), &wire.ReadMsg{Path: s.path, PropBitmap: 0}); err != nil {
			s.abort()
			return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntIPC, Inner: err}
		}

		reply, _, err := s.d.conn.Recv(wire.TypeWrite)
		if err != nil {
			s.abort()
			return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntIPC, Inner: err}
		}

		if _, ok := reply.(*wire.StatusMsg); ok {
			s.abort()
			return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntUnknown}
		}

		var ok bool
		write, ok = reply.(*wire.WriteMsg)
		if !ok {
			s.abort()
			return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntProtocol}
		}
	}

	if write.MemAddr == 0 && write.DataLength == 0 {
		if err := s.d.conn.Send(uint32(s.primary), &wire.ReadMsg{Path: s.path, PropBitmap: 0}); err != nil {
			s.abort()
			return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntIPC, Inner: err}
		}
		s.done = true
		s.d.releaseID(s.primary)
		s.d.release(s.path, windowRead)
		return nil, true, nil
	}

	data, err := s.d.readWindow.Read(write.MemAddr, write.DataLength)
	if err != nil || uint64(len(data)) != write.DataLength {
		s.d.conn.Send(uint32(s.primary), &wire.StatusMsg{Status: wire.StatusErrInternal})
		s.abort()
		return nil, false, &errs.InternalError{Op: "read", Kind: errs.IntRead, Inner: err}
	}

	return data, false, nil
}

func (s *ReadStream) abort() {
	s.failed = true
	s.d.releaseID(s.primary)
	s.d.release(s.path, windowRead)
}
