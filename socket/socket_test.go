package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkosten/ushell-go/osal"
	"github.com/vkosten/ushell-go/ushellerr"
)

func TestSocketDirectionMismatch(t *testing.T) {
	stream := osal.NewStreamBuffer(16)
	s, err := Init(stream, Config{Direction: Read, ChunkSize: 8}, Callbacks{}, nil)
	require.NoError(t, err)

	_, err = s.WriteBlocking([]byte("x"))
	require.ErrorIs(t, err, ushellerr.InvalidType)
}

func TestSocketInitRejectsZeroChunk(t *testing.T) {
	stream := osal.NewStreamBuffer(16)
	_, err := Init(stream, Config{Direction: Write, ChunkSize: 0}, Callbacks{}, nil)
	require.ErrorIs(t, err, ushellerr.InvalidArgs)
}

func TestSocketWriteReadChunked(t *testing.T) {
	stream := osal.NewStreamBuffer(16)
	w, err := Init(stream, Config{Direction: Write, ChunkSize: 3}, Callbacks{}, nil)
	require.NoError(t, err)

	writes := 0
	r, err := Init(stream, Config{Direction: Read, ChunkSize: 3}, Callbacks{OnRead: func() { writes++ }}, nil)
	require.NoError(t, err)

	go func() {
		_, werr := w.WriteBlocking([]byte("hello world"))
		require.NoError(t, werr)
	}()

	out := make([]byte, 11)
	n, err := r.ReadBlocking(out)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out[:n]))
	require.Greater(t, writes, 0)
}

func TestSocketPrint(t *testing.T) {
	stream := osal.NewStreamBuffer(64)
	w, err := Init(stream, Config{Direction: Write, ChunkSize: 64}, Callbacks{}, nil)
	require.NoError(t, err)

	n, err := w.Print("x=%d y=%s z=%%", 7, "ok")
	require.NoError(t, err)
	require.True(t, n > 0)

	out := make([]byte, n)
	got, _ := stream.ReceiveNonBlocking(out)
	require.Equal(t, "x=7 y=ok z=%", string(out[:got]))
}

func TestSocketPrintUnsignedAndIntConversions(t *testing.T) {
	stream := osal.NewStreamBuffer(64)
	w, err := Init(stream, Config{Direction: Write, ChunkSize: 64}, Callbacks{}, nil)
	require.NoError(t, err)

	n, err := w.Print("u=%u i=%i", 7, 8)
	require.NoError(t, err)

	out := make([]byte, n)
	got, _ := stream.ReceiveNonBlocking(out)
	require.Equal(t, "u=7 i=8", string(out[:got]))
}

func TestSocketPrintUnknownConversion(t *testing.T) {
	stream := osal.NewStreamBuffer(64)
	w, _ := Init(stream, Config{Direction: Write, ChunkSize: 64}, Callbacks{}, nil)
	_, err := w.Print("%q", "bad")
	require.ErrorIs(t, err, ushellerr.InvalidArgs)
}

func TestSocketReadTimeoutDurablePrefix(t *testing.T) {
	stream := osal.NewStreamBuffer(16)
	r, _ := Init(stream, Config{Direction: Read, ChunkSize: 4}, Callbacks{}, nil)
	stream.SendNonBlocking([]byte("ab"))

	out := make([]byte, 4)
	n, err := r.Read(out, 20*time.Millisecond)
	require.ErrorIs(t, err, ushellerr.Timeout)
	require.Equal(t, "ab", string(out[:n]))
}
