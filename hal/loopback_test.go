package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopbackPairDeliversAcrossPeers(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	var received []byte
	done := make(chan struct{}, 1)
	b.SetCallbacks(Callbacks{RxReceived: func() { done <- struct{}{} }})

	require.NoError(t, a.Write([]byte("hello")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RxReceived callback never fired")
	}

	require.True(t, b.IsReadDataAvailable())
	buf := make([]byte, 5)
	n, err := b.Read(buf)
	require.NoError(t, err)
	received = buf[:n]
	require.Equal(t, "hello", string(received))
}

func TestLoopbackWriteFiresTxComplete(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	txDone := make(chan struct{}, 1)
	a.SetCallbacks(Callbacks{TxComplete: func() { txDone <- struct{}{} }})

	require.NoError(t, a.Write([]byte("x")))

	select {
	case <-txDone:
	case <-time.After(time.Second):
		t.Fatal("TxComplete callback never fired")
	}
}

func TestLoopbackWaitChunkObservesWireTraffic(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	require.NoError(t, a.Write([]byte("wire")))

	chunk, ok := a.WaitChunk(time.Second)
	require.True(t, ok)
	require.Equal(t, "wire", string(chunk))
}

func TestLoopbackFeedInjectsWithoutPeer(t *testing.T) {
	a, _ := NewLoopbackPair("a", "b")
	require.NoError(t, a.Open())

	fired := make(chan struct{}, 1)
	a.SetCallbacks(Callbacks{RxReceived: func() { fired <- struct{}{} }})

	a.Feed([]byte("injected"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Feed did not fire RxReceived")
	}
	require.True(t, a.IsReadDataAvailable())
}

func TestLoopbackDirectionToggle(t *testing.T) {
	a, _ := NewLoopbackPair("a", "b")
	require.NoError(t, a.Open())
	require.Equal(t, DirRx, a.direction)
	require.NoError(t, a.SetTxMode())
	require.Equal(t, DirTx, a.direction)
	require.NoError(t, a.SetRxMode())
	require.Equal(t, DirRx, a.direction)
}
