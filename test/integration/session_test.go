// Package integration runs the six end-to-end scenarios of the
// singstorage client core against singstorage.FakeService, an in-process
// stand-in for singd, over a real UNIX domain socket.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	singstorage "github.com/HKUST-SING/singstorage-go"
	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/session"
)

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("singd-%d.sock", os.Getpid()))
}

func connectToFake(t *testing.T, svc *singstorage.FakeService, address, user string) *session.Session {
	t.Helper()
	require.NoError(t, svc.Listen(address))
	t.Cleanup(func() { svc.Close() })

	attachWrite, attachRead := svc.Attachers()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := session.ConnectWithAttachers(ctx, address, user, [32]byte{}, attachWrite, attachRead)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

// Scenario 1: happy write.
func TestHappyWrite(t *testing.T) {
	svc := singstorage.NewFakeService(4096, 4096)
	addr := socketPath(t)
	sess := connectToFake(t, svc, addr, "alice")

	data := make([]byte, 50_000)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, sess.Write("/a", data))

	stored, ok := svc.Object("/a")
	require.True(t, ok)
	require.True(t, bytes.Equal(data, stored))
	require.GreaterOrEqual(t, svc.Stats()["writes"], 1)
}

// Scenario 2: write to unknown path.
func TestWriteToUnknownPath(t *testing.T) {
	svc := singstorage.NewFakeService(4096, 4096)
	addr := socketPath(t)
	sess := connectToFake(t, svc, addr, "alice")

	svc.RejectWritePath("/a")

	err := sess.Write("/a", []byte("hello"))
	require.Error(t, err)
	var notFound *errs.PathNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "/a", notFound.Path)

	_, ok := svc.Object("/a")
	require.False(t, ok)
}

// Scenario 3: read of an object delivered in three chunks.
func TestReadInThreeChunks(t *testing.T) {
	chunkSize := 4096
	svc := singstorage.NewFakeService(4096, chunkSize)
	addr := socketPath(t)
	sess := connectToFake(t, svc, addr, "alice")

	object := make([]byte, chunkSize*3)
	for i := range object {
		object[i] = byte(i % 251)
	}
	svc.PutObject("/a", object)

	stream, err := sess.Read("/a")
	require.NoError(t, err)

	var got []byte
	var pulls int
	for {
		chunk, done, err := stream.Next()
		require.NoError(t, err)
		if done {
			break
		}
		got = append(got, chunk...)
		pulls++
		require.LessOrEqual(t, pulls, 3, "expected exactly three data chunks before the terminal pull")
	}

	require.Equal(t, 3, pulls)
	require.True(t, bytes.Equal(object, got))
}

// Scenario 4: delete denied.
func TestDeleteDenied(t *testing.T) {
	svc := singstorage.NewFakeService(4096, 4096)
	addr := socketPath(t)
	sess := connectToFake(t, svc, addr, "alice")

	svc.PutObject("/a", []byte("secret"))
	svc.DenyPath("/a")

	err := sess.Delete("/a")
	require.Error(t, err)
	var denied *errs.PathDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "/a", denied.Path)

	stored, ok := svc.Object("/a")
	require.True(t, ok, "a denied delete must not remove the object")
	require.Equal(t, []byte("secret"), stored)
}

// Scenario 5: out-of-range read chunk.
func TestOutOfRangeReadChunk(t *testing.T) {
	svc := singstorage.NewFakeService(4096, 4096)
	addr := socketPath(t)
	sess := connectToFake(t, svc, addr, "alice")

	svc.PutObject("/a", []byte("some object bytes"))
	svc.CorruptNextReadChunk("/a")

	stream, err := sess.Read("/a")
	require.NoError(t, err, "the corrupted address arrives as the first chunk, not at initiation")

	_, _, err = stream.Next()
	require.Error(t, err)
	var internal *errs.InternalError
	require.ErrorAs(t, err, &internal)
	require.Equal(t, errs.IntRead, internal.Kind)

	// The session survives the corruption and can still be torn down
	// cleanly — "the session remains closable".
	sess.Close()
}

// Scenario 6: connection refused then accepted.
//
// A stale socket file (created then immediately closed, leaving nothing
// listening) makes the first two dial attempts fail with
// connection-refused; replacing it with a real listener between the
// second and third attempts lets the third attempt succeed.
func TestConnectionRefusedThenAccepted(t *testing.T) {
	addr := socketPath(t)

	// A listener bound then immediately closed, with unlink-on-close
	// disabled, leaves a real unix socket special file behind with
	// nothing accepting on it — what produces ECONNREFUSED, as opposed
	// to ENOENT for a path that was never created at all.
	stale, err := net.Listen("unix", addr)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	svc := singstorage.NewFakeService(4096, 4096)
	t.Cleanup(func() { svc.Close() })

	go func() {
		time.Sleep(1500 * time.Millisecond)
		require.NoError(t, os.Remove(addr))
		require.NoError(t, svc.Listen(addr))
	}()

	attachWrite, attachRead := svc.Attachers()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := session.ConnectWithAttachers(ctx, addr, "alice", [32]byte{}, attachWrite, attachRead)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	require.True(t, sess.Connected())
}
