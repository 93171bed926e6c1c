//go:build linux

package hal

import (
	"errors"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

var errClosed = errors.New("hal: serial port already closed")

// openRawPort opens path the way Daedaluz-goserial's Port.Open does: a raw
// syscall.Open in read-write, no-controlling-terminal mode. Termios
// configuration (baud, raw mode) is left to the caller via goserial's own
// Termios helpers when a richer port object is wired in; this HAL only
// needs the file descriptor.
func openRawPort(path string) (int32, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return -1, err
	}
	return int32(fd), nil
}

func closeRawPort(fd int32) error {
	return syscall.Close(int(fd))
}

func readRawPort(fd int32, buf []byte) (int, error) {
	return syscall.Read(int(fd), buf)
}

func writeRawPort(fd int32, data []byte) (int, error) {
	return syscall.Write(int(fd), data)
}

// linuxRS485 mirrors the kernel's struct serial_rs485 layout closely enough
// to drive TIOCSRS485 (flags word + two delay words + reserved padding),
// the same shape Daedaluz-goserial's RS485 type passes to
// ioctl.Ioctl(fd, tiocsrs485, ...).
type linuxRS485 struct {
	flags           uint32
	delayRtsBefore  uint32
	delayRtsAfter   uint32
	reserved        [5]uint32
}

const rs485Enabled = 1

// setRS485 issues TIOCSRS485 on the descriptor the toggler was built with
// (see NewIoctlDirectionLine), setting or clearing the RS485-enabled flag.
// It backs ioctlDirectionLine.SetRS485TxMode.
func (d *ioctlDirectionLine) setRS485(enable bool) error {
	cfg := linuxRS485{}
	if enable {
		cfg.flags = rs485Enabled
	}
	const tiocsrs485 = 0x542F
	return ioctl.Ioctl(uintptr(d.fd), tiocsrs485, uintptr(unsafe.Pointer(&cfg)))
}

// NewIoctlDirectionLine returns an RS485 direction toggler bound to an
// already-open serial file descriptor.
func NewIoctlDirectionLine(fd int) rs485Toggler {
	return &ioctlDirectionLine{fd: fd}
}
