package session

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/shm"
	"github.com/HKUST-SING/singstorage-go/internal/transport"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// newTestDispatcherWithReadMem is like newTestDispatcher but also hands
// back the read window's backing slice, so a test can seed bytes into
// it the way singd would via its own mapping of the same shared region.
func newTestDispatcherWithReadMem(t *testing.T, writeSize, readSize int) (*Dispatcher, net.Conn, []byte) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	readMem := make([]byte, readSize)
	conn := transport.NewConn(client)
	ww := shm.NewWriteWindow(make([]byte, writeSize), 0x1000)
	rw := shm.NewReadWindow(readMem, 0x2000)
	return NewDispatcher(conn, ww, rw), server, readMem
}

// TestReadStreamThreeChunks drives scenario 3: a read of an object the
// service returns in three chunks followed by a terminal zero-length
// WRITE. Each chunk's acknowledgement is folded into the READ message
// requesting the next one, so the first chunk arrives as part of
// initiation (no extra round trip) and each subsequent pull is one
// READ/WRITE exchange; the terminal pull adds one final acknowledging
// READ.
func TestReadStreamThreeChunks(t *testing.T) {
	d, server, readMem := newTestDispatcherWithReadMem(t, 64, 64)

	chunks := [][]byte{
		[]byte("first-chunk-"),
		[]byte("second-chunk"),
		[]byte("third-chunk!"),
	}

	addrs := make([]uint64, len(chunks))
	offset := uint64(0)
	for i, c := range chunks {
		addrs[i] = d.readWindow.BaseAddr() + offset
		copy(readMem[offset:], c)
		offset += uint64(len(c))
	}

	streamCh := make(chan *ReadStream, 1)
	errCh := make(chan error, 1)
	go func() {
		s, err := d.ExecuteRead("/obj")
		streamCh <- s
		errCh <- err
	}()

	hdr, msg := recvFrame(t, server)
	req, ok := msg.(*wire.ReadMsg)
	require.True(t, ok)
	require.Equal(t, "/obj", req.Path)
	require.EqualValues(t, 1, req.PropBitmap)
	sendFrame(t, server, hdr.ID, &wire.WriteMsg{Path: "/obj", MemAddr: addrs[0], DataLength: uint64(len(chunks[0]))})

	require.NoError(t, <-errCh)
	stream := <-streamCh
	require.NotNil(t, stream)

	// First pull: the chunk arrived with initiation, so no wire traffic
	// is needed here.
	data, done, err := stream.Next()
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, chunks[0], data)

	// Second and third pulls: each is an ack-and-request READ answered
	// with the next chunk's WRITE.
	for i := 1; i < len(chunks); i++ {
		type pullResult struct {
			data []byte
			done bool
			err  error
		}
		pullCh := make(chan pullResult, 1)
		go func() {
			data, done, err := stream.Next()
			pullCh <- pullResult{data, done, err}
		}()

		hdr, msg := recvFrame(t, server)
		req, ok := msg.(*wire.ReadMsg)
		require.True(t, ok)
		require.Equal(t, "/obj", req.Path)
		require.EqualValues(t, 0, req.PropBitmap)
		sendFrame(t, server, hdr.ID, &wire.WriteMsg{Path: "/obj", MemAddr: addrs[i], DataLength: uint64(len(chunks[i]))})

		res := <-pullCh
		require.NoError(t, res.err)
		require.False(t, res.done)
		require.Equal(t, chunks[i], res.data)
	}

	// Final pull: ack-and-request READ answered with the terminal
	// zero-length WRITE, acknowledged once and then the stream reports
	// done.
	type pullResult struct {
		done bool
		err  error
	}
	pullCh := make(chan pullResult, 1)
	go func() {
		_, done, err := stream.Next()
		pullCh <- pullResult{done, err}
	}()

	hdr, msg = recvFrame(t, server)
	_, ok = msg.(*wire.ReadMsg)
	require.True(t, ok)
	sendFrame(t, server, hdr.ID, &wire.WriteMsg{Path: "/obj", MemAddr: 0, DataLength: 0})

	// The stream acknowledges the terminal chunk with one final READ.
	hdr, msg = recvFrame(t, server)
	_, ok = msg.(*wire.ReadMsg)
	require.True(t, ok)

	res := <-pullCh
	require.NoError(t, res.err)
	require.True(t, res.done)

	// Calling Next again is a no-op returning the same terminal state,
	// and does not touch the wire.
	data, done, err = stream.Next()
	require.NoError(t, err)
	require.True(t, done)
	require.Nil(t, data)
}

// TestReadUnknownPathAborts drives the read-admission-rejection path:
// no shared-memory traffic occurs and the read window is released.
func TestReadUnknownPathAborts(t *testing.T) {
	d, server := newTestDispatcher(t, 64, 64)

	streamCh := make(chan *ReadStream, 1)
	errCh := make(chan error, 1)
	go func() {
		s, err := d.ExecuteRead("/missing")
		streamCh <- s
		errCh <- err
	}()

	hdr, msg := recvFrame(t, server)
	_, ok := msg.(*wire.ReadMsg)
	require.True(t, ok)
	sendFrame(t, server, hdr.ID, &wire.StatusMsg{Status: wire.StatusErrPath})

	err := <-errCh
	stream := <-streamCh
	require.Nil(t, stream)
	require.Error(t, err)

	var notFound *errs.PathNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "/missing", notFound.Path)

	// The window must be free again for a subsequent read to proceed.
	require.NoError(t, d.acquire("/other", windowRead))
	d.release("/other", windowRead)
}
