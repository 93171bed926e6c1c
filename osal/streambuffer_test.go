package osal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkosten/ushell-go/ushellerr"
)

func TestStreamBufferFIFOOrder(t *testing.T) {
	sb := NewStreamBuffer(8)
	n, err := sb.SendBlocking([]byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	out := make([]byte, 4)
	n, err = sb.ReceiveBlocking(out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "abcd", string(out))
	require.True(t, sb.IsEmpty())
}

func TestStreamBufferCapacityInvariant(t *testing.T) {
	sb := NewStreamBuffer(4)
	n := sb.SendNonBlocking([]byte("abcdefgh"))
	require.Equal(t, 4, n, "resident bytes must never exceed capacity")
	require.False(t, sb.IsEmpty())
}

func TestStreamBufferNonBlockingEmpty(t *testing.T) {
	sb := NewStreamBuffer(4)
	_, err := sb.ReceiveNonBlocking(make([]byte, 1))
	require.ErrorIs(t, err, ushellerr.Empty)
}

func TestStreamBufferSendTimeout(t *testing.T) {
	sb := NewStreamBuffer(2)
	sb.SendNonBlocking([]byte("xy")) // fill it

	n, err := sb.Send([]byte("ab"), 20*time.Millisecond)
	require.ErrorIs(t, err, ushellerr.Timeout)
	require.Equal(t, 0, n)
}

func TestStreamBufferBlockingSendUnblocksOnReceive(t *testing.T) {
	sb := NewStreamBuffer(2)
	sb.SendNonBlocking([]byte("xy"))

	done := make(chan struct{})
	go func() {
		n, err := sb.SendBlocking([]byte("ab"))
		require.NoError(t, err)
		require.Equal(t, 2, n)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	out := make([]byte, 2)
	_, err := sb.ReceiveBlocking(out)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked send never unblocked after receive freed space")
	}
}

func TestStreamBufferReset(t *testing.T) {
	sb := NewStreamBuffer(4)
	sb.SendNonBlocking([]byte("ab"))
	sb.Reset()
	require.True(t, sb.IsEmpty())
}
