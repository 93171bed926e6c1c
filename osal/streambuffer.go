package osal

import (
	"sync"
	"time"

	"github.com/vkosten/ushell-go/ushellerr"
)

// StreamBuffer is a bounded, single-producer/single-consumer byte FIFO with
// the four access modes the spec requires: blocking, timed, non-blocking,
// and peek-empty. The VCP never shares one StreamBuffer between more than
// one producer or consumer, so a single mutex plus condition variable is
// sufficient — no lock-free ring is needed.
type StreamBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	ring []byte
	head int
	size int // bytes currently resident
}

// NewStreamBuffer returns an empty buffer with the given fixed capacity.
func NewStreamBuffer(capacity int) *StreamBuffer {
	sb := &StreamBuffer{ring: make([]byte, capacity)}
	sb.cond = sync.NewCond(&sb.mu)
	return sb
}

func (sb *StreamBuffer) cap() int { return len(sb.ring) }

func (sb *StreamBuffer) free() int { return sb.cap() - sb.size }

// pushLocked copies as much of data as fits and returns the count copied.
// Caller holds sb.mu.
func (sb *StreamBuffer) pushLocked(data []byte) int {
	n := len(data)
	if f := sb.free(); n > f {
		n = f
	}
	tail := (sb.head + sb.size) % sb.cap()
	for i := 0; i < n; i++ {
		sb.ring[(tail+i)%sb.cap()] = data[i]
	}
	sb.size += n
	return n
}

// popLocked copies up to len(out) resident bytes into out and returns the
// count copied. Caller holds sb.mu.
func (sb *StreamBuffer) popLocked(out []byte) int {
	n := len(out)
	if n > sb.size {
		n = sb.size
	}
	for i := 0; i < n; i++ {
		out[i] = sb.ring[(sb.head+i)%sb.cap()]
	}
	sb.head = (sb.head + n) % sb.cap()
	sb.size -= n
	return n
}

// SendNonBlocking accepts as many bytes of data as currently fit and
// returns the count accepted without blocking.
func (sb *StreamBuffer) SendNonBlocking(data []byte) int {
	sb.mu.Lock()
	n := sb.pushLocked(data)
	sb.mu.Unlock()
	if n > 0 {
		sb.cond.Broadcast()
	}
	return n
}

// SendBlocking writes all of data, blocking while the buffer is full.
func (sb *StreamBuffer) SendBlocking(data []byte) (int, error) {
	return sb.send(data, -1)
}

// Send writes all of data or returns ushellerr.Timeout with the already
// accepted prefix durable once timeout elapses.
func (sb *StreamBuffer) Send(data []byte, timeout time.Duration) (int, error) {
	return sb.send(data, timeout)
}

func (sb *StreamBuffer) send(data []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	total := 0
	for total < len(data) {
		sb.mu.Lock()
		for sb.free() == 0 {
			if timeout >= 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					sb.mu.Unlock()
					return total, ushellerr.New("streambuffer.Send", ushellerr.KindTimeout)
				}
				timer := time.AfterFunc(remaining, sb.cond.Broadcast)
				sb.cond.Wait()
				timer.Stop()
			} else {
				sb.cond.Wait()
			}
		}
		n := sb.pushLocked(data[total:])
		sb.mu.Unlock()
		if n > 0 {
			sb.cond.Broadcast()
		}
		total += n
	}
	return total, nil
}

// ReceiveNonBlocking copies whatever bytes are resident (up to len(out))
// without blocking. Returns ushellerr.Empty if nothing was resident.
func (sb *StreamBuffer) ReceiveNonBlocking(out []byte) (int, error) {
	sb.mu.Lock()
	n := sb.popLocked(out)
	sb.mu.Unlock()
	if n > 0 {
		sb.cond.Broadcast()
	}
	if n == 0 {
		return 0, ushellerr.New("streambuffer.ReceiveNonBlocking", ushellerr.KindEmpty)
	}
	return n, nil
}

// ReceiveBlocking reads exactly len(out) bytes, blocking while starved.
func (sb *StreamBuffer) ReceiveBlocking(out []byte) (int, error) {
	return sb.receive(out, -1)
}

// Receive reads exactly len(out) bytes or returns ushellerr.Timeout with
// the bytes already copied to out durable in out[:n].
func (sb *StreamBuffer) Receive(out []byte, timeout time.Duration) (int, error) {
	return sb.receive(out, timeout)
}

func (sb *StreamBuffer) receive(out []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	total := 0
	for total < len(out) {
		sb.mu.Lock()
		for sb.size == 0 {
			if timeout >= 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					sb.mu.Unlock()
					return total, ushellerr.New("streambuffer.Receive", ushellerr.KindTimeout)
				}
				timer := time.AfterFunc(remaining, sb.cond.Broadcast)
				sb.cond.Wait()
				timer.Stop()
			} else {
				sb.cond.Wait()
			}
		}
		n := sb.popLocked(out[total:])
		sb.mu.Unlock()
		if n > 0 {
			sb.cond.Broadcast()
		}
		total += n
	}
	return total, nil
}

// IsEmpty reports whether no bytes are currently resident.
func (sb *StreamBuffer) IsEmpty() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size == 0
}

// Reset discards all resident bytes.
func (sb *StreamBuffer) Reset() {
	sb.mu.Lock()
	sb.head = 0
	sb.size = 0
	sb.mu.Unlock()
	sb.cond.Broadcast()
}
