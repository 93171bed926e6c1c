package vcp

import (
	"context"
)

// workerLoop is the single goroutine permitted to call HAL read/write or
// toggle HAL direction (spec.md §4.4, §5). It waits on the event group for
// any of the four bits and acts on whichever are set, Error first since a
// reset should happen before another read/write pass runs against stale
// state.
func (v *VCP) workerLoop() {
	defer v.wg.Done()
	for {
		bits := v.events.WaitBits(EventRx|EventTx|EventError|EventInspect, true, false, v.done)
		if bits == 0 {
			select {
			case <-v.done:
				return
			default:
				continue
			}
		}
		if bits&EventError != 0 {
			v.reset()
		}
		if bits&EventRx != 0 {
			v.readFromPort()
		}
		if bits&EventTx != 0 {
			v.writeToPort()
		}
		if bits&EventInspect != 0 {
			v.inspectOnce()
		}
	}
}

// readFromPort drains the HAL into io-scratch and fans each chunk out to
// every used read session. Fan-out is lossy by design (spec.md §9's
// resolved Open Question): a read session whose stream is full drops the
// chunk rather than stalling the worker or the wire.
func (v *VCP) readFromPort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for {
		n, err := v.hal.Read(v.scratch)
		if err != nil {
			v.events.SetBits(EventError)
			return
		}
		if n == 0 {
			return
		}
		for i := range v.sessions {
			s := &v.sessions[i]
			if s.used && s.direction.IsRead() {
				s.stream.SendNonBlocking(v.scratch[:n])
			}
		}
	}
}

// writeToPort serialises every used write session's queued bytes through
// the HAL, one tx-complete handshake per chunk, restoring rx mode once all
// sessions have drained.
func (v *VCP) writeToPort() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.hal.SetTxMode(); err != nil {
		v.events.SetBits(EventError)
		return
	}

	for i := range v.sessions {
		s := &v.sessions[i]
		if !s.used || !s.direction.IsWrite() {
			continue
		}
		for !s.stream.IsEmpty() {
			n, _ := s.stream.ReceiveNonBlocking(v.scratch)
			if n == 0 {
				break
			}
			v.xferQueue.Flush()
			if err := v.hal.Write(v.scratch[:n]); err != nil {
				v.events.SetBits(EventError)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), v.cfg.TxTimeout)
			msg, ok := v.xferQueue.Get(ctx)
			cancel()
			if !ok || msg != TransferComplete {
				v.events.SetBits(EventError)
				return
			}
		}
	}

	if err := v.hal.SetRxMode(); err != nil {
		v.events.SetBits(EventError)
	}
}

// reset is the Error-event path: flush the xfer-queue, reset every
// session's stream, clear io-scratch, force rx mode. No session is
// destroyed; callers in flight observe PortErr and may retry.
func (v *VCP) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.xferQueue.Flush()
	for i := range v.sessions {
		if v.sessions[i].used {
			v.sessions[i].stream.Reset()
		}
	}
	for i := range v.scratch {
		v.scratch[i] = 0
	}
	_ = v.hal.SetRxMode()
}

// inspectOnce is the periodic self-poll that recovers from a missed
// interrupt or a producer that filled its stream while the worker idled.
func (v *VCP) inspectOnce() {
	if v.hal.IsReadDataAvailable() {
		v.events.SetBits(EventRx)
	}
	v.mu.Lock()
	for i := range v.sessions {
		s := &v.sessions[i]
		if s.used && s.direction.IsWrite() && !s.stream.IsEmpty() {
			v.events.SetBits(EventTx)
			break
		}
	}
	v.mu.Unlock()
}

// Inspect posts EventInspect for the worker to pick up, the same bit the
// periodic timer sets (spec.md §4.4's Inspect row); exported so tests can
// force an inspect pass without waiting out InspectPeriod.
func (v *VCP) Inspect() {
	v.events.SetBits(EventInspect)
}
