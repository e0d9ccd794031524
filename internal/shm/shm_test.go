package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteWindowFillsAndDrains(t *testing.T) {
	w := NewWriteWindow(make([]byte, 16), 0x1000)

	require.EqualValues(t, 16, w.WritableTotal())
	require.EqualValues(t, 16, w.WritableContiguous())

	n := w.Write([]byte("0123456789"))
	require.EqualValues(t, 10, n)
	require.EqualValues(t, 6, w.WritableTotal())

	require.NoError(t, w.Release(4))
	require.EqualValues(t, 10, w.WritableTotal())
}

func TestWriteWindowNeverWrapsWithinOneCall(t *testing.T) {
	w := NewWriteWindow(make([]byte, 8), 0)

	n := w.Write([]byte("123456"))
	require.EqualValues(t, 6, n)
	require.NoError(t, w.Release(6))

	// head is now 6, tail is 6: writing 4 bytes can only place 2
	// contiguously before the buffer end, even though 8 bytes are free.
	n = w.Write([]byte("abcd"))
	require.EqualValues(t, 2, n)
	require.EqualValues(t, 6, w.WritableTotal())
}

func TestWriteWindowFullRoundTrip(t *testing.T) {
	w := NewWriteWindow(make([]byte, 4), 0)

	n := w.Write([]byte("abcd"))
	require.EqualValues(t, 4, n)
	require.EqualValues(t, 0, w.WritableTotal())

	require.NoError(t, w.Release(4))
	require.EqualValues(t, 4, w.WritableTotal())
}

func TestWriteWindowReleaseRejectsOverrelease(t *testing.T) {
	w := NewWriteWindow(make([]byte, 8), 0)
	w.Write([]byte("ab"))
	require.Error(t, w.Release(3))
}

func TestWriteWindowRingArithmeticInvariant(t *testing.T) {
	w := NewWriteWindow(make([]byte, 32), 0)
	var written, released uint64

	ops := []struct {
		write   int
		release uint32
	}{
		{10, 0}, {0, 5}, {8, 0}, {0, 3}, {6, 0}, {0, 10}, {4, 0}, {0, 6},
	}

	for _, op := range ops {
		if op.write > 0 {
			data := make([]byte, op.write)
			for written+uint64(op.write)-released <= 32 && len(data) > 0 {
				n := w.Write(data)
				if n == 0 {
					break
				}
				written += n
				data = data[n:]
			}
		}
		if op.release > 0 {
			require.NoError(t, w.Release(op.release))
			released += uint64(op.release)
		}
	}

	require.EqualValues(t, 32-(written-released), w.WritableTotal())
	require.LessOrEqual(t, w.WritableContiguous(), w.WritableTotal())
}

func TestReadWindowBoundsChecking(t *testing.T) {
	mem := []byte("hello world, this is shared memory")
	r := NewReadWindow(mem, 0x2000)

	data, err := r.Read(0x2000, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = r.Read(0x1000, 5)
	require.Error(t, err)

	_, err = r.Read(0x2000+uint64(len(mem))-2, 10)
	require.Error(t, err)
}
