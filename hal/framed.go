package hal

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/sagernet/sing/common/bufio"
)

// FramedIOChannel is a half-duplex Channel over any io.ReadWriteCloser that
// frames each write with a 2-byte big-endian length prefix — the shape a
// packetized transport underneath a byte-channel abstraction needs (a
// USB-CDC bulk pipe or a TCP-based virtual serial link used for
// integration testing without real silicon). The length header and the
// payload are written as one scatter-gather call when the underlying
// writer supports it, exactly the way the teacher's sendLoop combines a
// frame header and its payload into a single vectorised write.
type FramedIOChannel struct {
	rw io.ReadWriteCloser

	mu        sync.Mutex
	cb        Callbacks
	direction Direction

	readMu  sync.Mutex
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFramedIOChannel wraps rw. Open starts the background read pump.
func NewFramedIOChannel(rw io.ReadWriteCloser) *FramedIOChannel {
	return &FramedIOChannel{rw: rw, closed: make(chan struct{})}
}

func (f *FramedIOChannel) SetCallbacks(cb Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FramedIOChannel) Open() error {
	go f.readPump()
	return nil
}

func (f *FramedIOChannel) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return f.rw.Close()
}

// Write sends a 2-byte length header followed by data as a single
// vectorised write when the wrapped writer exposes one, falling back to a
// single copy+write otherwise — the same branch the teacher's sendLoop
// takes on bufio.CreateVectorisedWriter's ok result.
func (f *FramedIOChannel) Write(data []byte) error {
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(data)))

	if bw, ok := bufio.CreateVectorisedWriter(f.rw); ok {
		vec := [][]byte{header[:], data}
		if _, err := bufio.WriteVectorised(bw, vec); err != nil {
			f.reportError(err)
			return err
		}
	} else {
		buf := make([]byte, 2+len(data))
		copy(buf, header[:])
		copy(buf[2:], data)
		if _, err := f.rw.Write(buf); err != nil {
			f.reportError(err)
			return err
		}
	}

	f.mu.Lock()
	onTx := f.cb.TxComplete
	f.mu.Unlock()
	if onTx != nil {
		onTx()
	}
	return nil
}

func (f *FramedIOChannel) reportError(err error) {
	f.mu.Lock()
	onErr := f.cb.RxTxError
	f.mu.Unlock()
	if onErr != nil {
		onErr(err)
	}
}

func (f *FramedIOChannel) readPump() {
	var header [2]byte
	for {
		if _, err := io.ReadFull(f.rw, header[:]); err != nil {
			select {
			case <-f.closed:
				return
			default:
			}
			f.reportError(err)
			return
		}
		n := binary.BigEndian.Uint16(header[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(f.rw, payload); err != nil {
			f.reportError(err)
			return
		}
		f.readMu.Lock()
		f.pending = append(f.pending, payload...)
		f.readMu.Unlock()

		f.mu.Lock()
		onRx := f.cb.RxReceived
		f.mu.Unlock()
		if onRx != nil {
			onRx()
		}
	}
}

func (f *FramedIOChannel) IsReadDataAvailable() bool {
	f.readMu.Lock()
	defer f.readMu.Unlock()
	return len(f.pending) > 0
}

func (f *FramedIOChannel) Read(buf []byte) (int, error) {
	f.readMu.Lock()
	defer f.readMu.Unlock()
	n := copy(buf, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *FramedIOChannel) SetTxMode() error {
	f.mu.Lock()
	f.direction = DirTx
	f.mu.Unlock()
	return nil
}

func (f *FramedIOChannel) SetRxMode() error {
	f.mu.Lock()
	f.direction = DirRx
	f.mu.Unlock()
	return nil
}
