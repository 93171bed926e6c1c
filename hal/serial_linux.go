//go:build linux

package hal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/daedaluz/fdev/poll"
)

// rs485Toggler is satisfied by an RS485-capable termios backend; kept as a
// narrow interface rather than importing a concrete driver type so tests
// can substitute a fake.
type rs485Toggler interface {
	SetRS485TxMode(enable bool) error
}

// Serial is a half-duplex UART Channel for Linux over a raw file
// descriptor, grounded on Daedaluz-goserial's raw syscall.Open/Read/Write
// port with fdev/poll.WaitInput gating reads. It does not configure termios
// (baud rate, raw mode): the device is used with the line settings it
// already has. An optional RS485
// direction toggler backs SetTxMode/SetRxMode; ports without RS485 hardware
// leave it nil and direction switching is a no-op, as spec.md §4.1 allows
// on full-duplex-capable transports.
//
// Serial never fires RxReceived; incoming bytes are noticed only when the
// owner polls IsReadDataAvailable (the VCP's periodic inspect pass). Read
// waits up to pollTimeout for input before returning 0, so it is bounded
// rather than non-blocking.
type Serial struct {
	path string
	fd   int32 // -1 when closed

	pollTimeout time.Duration
	rs485       rs485Toggler

	mu sync.Mutex
	cb Callbacks
}

// NewSerial returns a Serial bound to the given device path (e.g.
// "/dev/ttyS0"). Open must be called before use.
func NewSerial(path string, pollTimeout time.Duration, rs485 rs485Toggler) *Serial {
	return &Serial{path: path, fd: -1, pollTimeout: pollTimeout, rs485: rs485}
}

func (s *Serial) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *Serial) Open() error {
	if atomic.LoadInt32(&s.fd) >= 0 {
		_ = s.Close()
	}
	fd, err := openRawPort(s.path)
	if err != nil {
		return err
	}
	atomic.StoreInt32(&s.fd, fd)
	return nil
}

func (s *Serial) Close() error {
	fd := atomic.SwapInt32(&s.fd, -1)
	if fd < 0 {
		return nil
	}
	return closeRawPort(fd)
}

func (s *Serial) IsReadDataAvailable() bool {
	fd := atomic.LoadInt32(&s.fd)
	if fd < 0 {
		return false
	}
	return poll.WaitInput(int(fd), 0) == nil
}

func (s *Serial) Read(buf []byte) (int, error) {
	fd := atomic.LoadInt32(&s.fd)
	if fd < 0 {
		return 0, errClosed
	}
	if err := poll.WaitInput(int(fd), s.pollTimeout); err != nil {
		// No data ready within the poll window; never block past it.
		return 0, nil
	}
	return readRawPort(fd, buf)
}

func (s *Serial) Write(data []byte) error {
	fd := atomic.LoadInt32(&s.fd)
	if fd < 0 {
		return errClosed
	}
	n, err := writeRawPort(fd, data)
	if err != nil {
		s.mu.Lock()
		onErr := s.cb.RxTxError
		s.mu.Unlock()
		if onErr != nil {
			onErr(err)
		}
		return err
	}
	s.mu.Lock()
	onTx := s.cb.TxComplete
	s.mu.Unlock()
	if onTx != nil && n == len(data) {
		onTx()
	}
	return nil
}

func (s *Serial) SetTxMode() error {
	if s.rs485 != nil {
		return s.rs485.SetRS485TxMode(true)
	}
	return nil
}

func (s *Serial) SetRxMode() error {
	if s.rs485 != nil {
		return s.rs485.SetRS485TxMode(false)
	}
	return nil
}

// ioctlDirectionLine is a reference RS485 toggler built on goioctl, wired
// the way Daedaluz-goserial's SetRS485/GetRS485 issue TIOCSRS485/TIOCGRS485.
// See serial_linux_port.go for the struct layout and the ioctl call itself.
type ioctlDirectionLine struct {
	fd int
}

func (d *ioctlDirectionLine) SetRS485TxMode(enable bool) error {
	return d.setRS485(enable)
}
