// Package osal provides the small set of OS-primitive abstractions the VCP
// worker is built from: an event-group bitset, a bounded queue, a bounded
// byte stream buffer, and a periodic timer. On a real RTOS port these would
// each wrap a native primitive (FreeRTOS EventGroup, StreamBuffer, ...); on
// this host port they are the direct Go idiom for the same contract —
// channels and mutexes, not goroutine-per-bit polling.
package osal

import "sync"

// Bits is a small bitset of event flags. The VCP uses four of them (see
// vcp.Event*), but the primitive itself is generic.
type Bits uint32

// EventGroup is a set of bits with wait-any/wait-all, clear-on-read
// semantics, and atomic set-bits from any goroutine including callback
// context. It is the Go analogue of an RTOS event group.
type EventGroup struct {
	mu      sync.Mutex
	bits    Bits
	changed chan struct{} // closed and replaced every time bits changes
}

// NewEventGroup returns an empty event group.
func NewEventGroup() *EventGroup {
	return &EventGroup{changed: make(chan struct{})}
}

// SetBits ORs bits into the group and wakes any waiter whose mask might now
// be satisfied. Safe to call from callback/IRQ-style context: it never
// blocks.
func (eg *EventGroup) SetBits(bits Bits) {
	eg.mu.Lock()
	eg.bits |= bits
	old := eg.changed
	eg.changed = make(chan struct{})
	eg.mu.Unlock()
	close(old)
}

// ClearBits clears bits unconditionally.
func (eg *EventGroup) ClearBits(bits Bits) {
	eg.mu.Lock()
	eg.bits &^= bits
	eg.mu.Unlock()
}

// WaitBits blocks until at least one (waitAll=false) or all (waitAll=true)
// of mask's bits are set, then returns the bits of mask that were set at
// that instant. If clearOnExit is true, the returned bits are cleared from
// the group before returning. A closed stop channel aborts the wait early
// and returns 0.
func (eg *EventGroup) WaitBits(mask Bits, clearOnExit, waitAll bool, stop <-chan struct{}) Bits {
	for {
		eg.mu.Lock()
		satisfied := eg.bits & mask
		ok := satisfied != 0
		if waitAll {
			ok = satisfied == mask
		}
		if ok {
			if clearOnExit {
				eg.bits &^= satisfied
			}
			eg.mu.Unlock()
			return satisfied
		}
		ch := eg.changed
		eg.mu.Unlock()

		select {
		case <-ch:
		case <-stop:
			return 0
		}
	}
}
