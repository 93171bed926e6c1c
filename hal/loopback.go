package hal

import (
	"sync"
	"time"
)

// Loopback is an in-memory half-duplex Channel standing in for silicon: a
// pair of Loopbacks created by NewLoopbackPair are cross-wired so that a
// Write on one end lands in the other's inbox. There are no background
// goroutines: callbacks fire synchronously on the goroutine that called
// Write or Feed, and no real IO is involved. It backs the test suite's
// echo/fan-out scenarios and the `ushelld -port loopback` demo mode.
type Loopback struct {
	name string

	mu        sync.Mutex
	cb        Callbacks
	open      bool
	direction Direction
	pending   []byte // bytes received, not yet drained by Read

	peer *Loopback
	// chunks delivers every chunk this end transmits, for test assertions
	// against what went out "on the wire".
	chunks chan []byte
}

// NewLoopbackPair returns two cross-wired channels: bytes written on a are
// delivered to b's RxReceived callback and vice versa.
func NewLoopbackPair(nameA, nameB string) (a, b *Loopback) {
	a = &Loopback{name: nameA, chunks: make(chan []byte, 64)}
	b = &Loopback{name: nameB, chunks: make(chan []byte, 64)}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *Loopback) Open() error {
	l.mu.Lock()
	l.open = true
	l.pending = nil
	l.direction = DirRx
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.open = false
	l.mu.Unlock()
	return nil
}

func (l *Loopback) SetCallbacks(cb Callbacks) {
	l.mu.Lock()
	l.cb = cb
	l.mu.Unlock()
}

func (l *Loopback) IsReadDataAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

func (l *Loopback) Read(buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := copy(buf, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write delivers data to the peer's inbox and fires the peer's RxReceived
// callback, then fires this end's own TxComplete — the loopback equivalent
// of "the driver accepted the request and the wire carried it instantly".
func (l *Loopback) Write(data []byte) error {
	cp := append([]byte(nil), data...)

	select {
	case l.chunks <- cp:
	default:
	}

	peer := l.peer
	if peer != nil {
		peer.mu.Lock()
		peer.pending = append(peer.pending, cp...)
		cb := peer.cb.RxReceived
		peer.mu.Unlock()
		if cb != nil {
			cb()
		}
	}

	l.mu.Lock()
	txComplete := l.cb.TxComplete
	l.mu.Unlock()
	if txComplete != nil {
		txComplete()
	}
	return nil
}

func (l *Loopback) SetTxMode() error {
	l.mu.Lock()
	l.direction = DirTx
	l.mu.Unlock()
	return nil
}

func (l *Loopback) SetRxMode() error {
	l.mu.Lock()
	l.direction = DirRx
	l.mu.Unlock()
	return nil
}

// Feed injects bytes as if received from the wire, for tests driving a
// Loopback directly rather than through its peer.
func (l *Loopback) Feed(data []byte) {
	l.mu.Lock()
	l.pending = append(l.pending, data...)
	cb := l.cb.RxReceived
	l.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// WaitChunk blocks up to timeout for the next chunk this end transmitted,
// for test assertions about what was written to the wire.
func (l *Loopback) WaitChunk(timeout time.Duration) ([]byte, bool) {
	select {
	case c := <-l.chunks:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}
