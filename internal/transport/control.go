// Package transport implements the singstorage control channel: a
// framed binary protocol carried over a UNIX domain stream socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/HKUST-SING/singstorage-go/internal/constants"
	"github.com/HKUST-SING/singstorage-go/internal/logging"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// Conn is a framed message transport over a net.Conn, normally a
// net.UnixConn but any net.Conn works (net.Pipe in tests).
type Conn struct {
	raw    net.Conn
	nextID uint32
	closed bool
}

// ErrIPC wraps a transport-layer failure: a dial, read, or write that
// failed for reasons outside the protocol itself.
type ErrIPC struct {
	Op    string
	Inner error
}

func (e *ErrIPC) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Inner)
}

func (e *ErrIPC) Unwrap() error { return e.Inner }

// ErrProtocol reports that the peer's response did not match what the
// protocol state machine expected.
type ErrProtocol struct {
	Op      string
	Message string
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("transport: %s: protocol error: %s", e.Op, e.Message)
}

// Dial connects to the singstorage control socket at address, retrying
// a connection-refused dial up to constants.DialMaxRetries additional
// times, constants.DialRetryDelay apart. Any other dial failure is
// returned immediately without retry.
func Dial(ctx context.Context, address string) (*Conn, error) {
	var dialer net.Dialer
	var lastErr error

	for attempt := 0; attempt <= constants.DialMaxRetries; attempt++ {
		if attempt > 0 {
			logging.Default().Debug("retrying control socket dial", "attempt", attempt, "address", address)
			select {
			case <-ctx.Done():
				return nil, &ErrIPC{Op: "dial", Inner: ctx.Err()}
			case <-time.After(constants.DialRetryDelay):
			}
		}

		raw, err := dialer.DialContext(ctx, "unix", address)
		if err == nil {
			return &Conn{raw: raw}, nil
		}
		lastErr = err

		if !isConnRefused(err) {
			return nil, &ErrIPC{Op: "dial", Inner: err}
		}
	}

	return nil, &ErrIPC{Op: "dial", Inner: lastErr}
}

// NewConn wraps an already-established net.Conn (used directly by
// tests against net.Pipe).
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Send encodes msg with the caller-supplied transaction id and writes
// the full frame, retrying partial writes until the buffer is drained
// or an error occurs. Transaction id allocation is the caller's
// responsibility (the session package's idGenerator), not the
// transport's.
func (c *Conn) Send(id uint32, msg wire.Message) error {
	buf := wire.Encode(id, msg)

	for written := 0; written < len(buf); {
		n, err := c.raw.Write(buf[written:])
		if err != nil {
			return &ErrIPC{Op: "send", Inner: err}
		}
		written += n
	}
	return nil
}

// sendAuto sends msg with an internally generated id, used only for
// teardown messages where no caller-tracked transaction id applies.
func (c *Conn) sendAuto(msg wire.Message) error {
	c.nextID++
	return c.Send(c.nextID, msg)
}

// Recv reads one full frame and decodes it, returning the message along
// with its header (callers needing the transaction id read h.ID). If
// the frame's type does not match expected, a STATUS frame is accepted
// transparently (the service's universal way of reporting a failure in
// place of the caller's expected reply); any other mismatch is a
// protocol error.
func (c *Conn) Recv(expected wire.Type) (wire.Message, wire.Header, error) {
	return c.RecvAny(expected)
}

// RecvAny is Recv generalized to a set of acceptable reply types, for
// protocol steps where the service may legitimately answer in more than
// one shape. Write Phase C is the motivating case: a chunk ack arrives
// as either READ (request-more) or RELEASE (ring reclaim only), and both
// are accepted identically (spec's write acknowledgement rule). A STATUS
// frame is always accepted transparently regardless of what's listed;
// anything else is a protocol error.
func (c *Conn) RecvAny(expected ...wire.Type) (wire.Message, wire.Header, error) {
	hdr := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(c.raw, hdr); err != nil {
		return nil, wire.Header{}, &ErrIPC{Op: "recv", Inner: err}
	}

	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return nil, wire.Header{}, &ErrIPC{Op: "recv", Inner: err}
	}

	body := make([]byte, 0)
	if h.Length > wire.HeaderSize {
		body = make([]byte, h.Length-wire.HeaderSize)
		if _, err := io.ReadFull(c.raw, body); err != nil {
			return nil, h, &ErrIPC{Op: "recv", Inner: err}
		}
	}

	msg, err := wire.Decode(h.Type, body)
	if err != nil {
		return nil, h, &ErrIPC{Op: "recv", Inner: err}
	}

	if h.Type == wire.TypeStatus {
		return msg, h, nil
	}
	for _, want := range expected {
		if h.Type == want {
			return msg, h, nil
		}
	}

	return nil, h, &ErrProtocol{
		Op:      "recv",
		Message: fmt.Sprintf("expected one of %v, got %s", expected, h.Type),
	}
}

// Close sends CLOSE, awaits the service's STATUS reply, and resends
// once if the service reports StatusErrAmbiguous. All errors are
// swallowed: Close unconditionally marks the transport closed and
// closes the underlying connection, matching the rest of this client's
// idempotent-teardown idiom.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	defer c.raw.Close()

	for attempt := 0; attempt < 2; attempt++ {
		if err := c.sendAuto(&wire.CloseMsg{}); err != nil {
			return
		}
		reply, _, err := c.Recv(wire.TypeStatus)
		if err != nil {
			return
		}
		status, ok := reply.(*wire.StatusMsg)
		if !ok {
			return
		}
		if status.Status == wire.StatusErrAmbiguous && attempt == 0 {
			continue
		}
		return
	}
}
