package osal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	bitRx Bits = 1 << iota
	bitTx
	bitErr
)

func TestEventGroupWaitAnyClearOnRead(t *testing.T) {
	eg := NewEventGroup()
	eg.SetBits(bitRx)

	got := eg.WaitBits(bitRx|bitTx, true, false, nil)
	require.Equal(t, bitRx, got)

	// clear-on-read means the bit is gone; a second wait with an
	// already-closed stop channel must not find it set.
	require.Equal(t, Bits(0), eg.WaitBits(bitRx, false, false, closedChan()))
}

func TestEventGroupCoalescesMultipleSetters(t *testing.T) {
	eg := NewEventGroup()
	go eg.SetBits(bitRx)
	go eg.SetBits(bitTx)

	got := eg.WaitBits(bitRx|bitTx, true, true, nil)
	require.Equal(t, bitRx|bitTx, got)
}

func TestEventGroupWaitAbortsOnStop(t *testing.T) {
	eg := NewEventGroup()
	stop := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(stop)
	}()
	got := eg.WaitBits(bitErr, false, false, stop)
	require.Equal(t, Bits(0), got)
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
