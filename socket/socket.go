// Package socket implements the typed, chunked byte pipe described in
// spec.md §4.2: a fixed-direction handle over one osal.StreamBuffer with
// formatted I/O helpers.
package socket

import (
	"fmt"
	"time"

	"github.com/vkosten/ushell-go/osal"
	"github.com/vkosten/ushell-go/ushellerr"
)

// Direction fixes a socket to one side of a stream.
type Direction int

const (
	Read Direction = iota
	Write
)

// IsRead reports whether d is the Read direction.
func (d Direction) IsRead() bool { return d == Read }

// IsWrite reports whether d is the Write direction.
func (d Direction) IsWrite() bool { return d == Write }

// Callbacks notify the owner that a chunk crossed the socket. The VCP
// installs OnWrite on write sessions to post TxEvent (spec.md §4.4's
// table) and installs no OnRead.
type Callbacks struct {
	OnRead  func()
	OnWrite func()
}

// Socket is a fixed-direction handle over one stream buffer. Mixing read
// and write operations on one socket fails with ushellerr.InvalidType.
type Socket struct {
	direction Direction
	chunkSize int
	stream    *osal.StreamBuffer
	cb        Callbacks
	parent    any
}

// Config configures Init.
type Config struct {
	Direction Direction
	ChunkSize int
}

// Init validates cfg and binds the socket to stream. Zero chunk size is
// rejected; stream must be non-nil.
func Init(stream *osal.StreamBuffer, cfg Config, cb Callbacks, parent any) (*Socket, error) {
	if stream == nil || cfg.ChunkSize <= 0 {
		return nil, ushellerr.New("socket.Init", ushellerr.KindInvalidArgs)
	}
	if cfg.Direction != Read && cfg.Direction != Write {
		return nil, ushellerr.New("socket.Init", ushellerr.KindInvalidArgs)
	}
	return &Socket{
		direction: cfg.Direction,
		chunkSize: cfg.ChunkSize,
		stream:    stream,
		cb:        cb,
		parent:    parent,
	}, nil
}

// DeInit clears the socket's state. It does not destroy the stream.
func (s *Socket) DeInit() {
	s.stream = nil
	s.cb = Callbacks{}
}

// Direction reports the socket's fixed direction.
func (s *Socket) Direction() Direction { return s.direction }

// Parent returns the opaque owner handed to Init.
func (s *Socket) Parent() any { return s.parent }

func (s *Socket) requireDirection(want Direction, op string) error {
	if s.stream == nil {
		return ushellerr.New(op, ushellerr.KindNotInit)
	}
	if s.direction != want {
		return ushellerr.New(op, ushellerr.KindInvalidType)
	}
	return nil
}

// WriteBlocking chunks data by ChunkSize and blocking-sends each chunk,
// invoking OnWrite after every chunk lands.
func (s *Socket) WriteBlocking(data []byte) (int, error) {
	if err := s.requireDirection(Write, "socket.WriteBlocking"); err != nil {
		return 0, err
	}
	total := 0
	for total < len(data) {
		end := total + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := s.stream.SendBlocking(data[total:end])
		total += n
		if s.cb.OnWrite != nil && n > 0 {
			s.cb.OnWrite()
		}
		if err != nil {
			return total, ushellerr.Wrap("socket.WriteBlocking", ushellerr.KindPortErr, err)
		}
	}
	return total, nil
}

// Write is WriteBlocking bounded by timeout. On a partial chunk it returns
// ushellerr.Timeout with the already-accepted prefix durable.
func (s *Socket) Write(data []byte, timeout time.Duration) (int, error) {
	if err := s.requireDirection(Write, "socket.Write"); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(data) {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		end := total + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := s.stream.Send(data[total:end], remaining)
		total += n
		if s.cb.OnWrite != nil && n > 0 {
			s.cb.OnWrite()
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadBlocking chunks into data by ChunkSize and blocking-receives each
// chunk, invoking OnRead after every chunk lands.
func (s *Socket) ReadBlocking(data []byte) (int, error) {
	if err := s.requireDirection(Read, "socket.ReadBlocking"); err != nil {
		return 0, err
	}
	total := 0
	for total < len(data) {
		end := total + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := s.stream.ReceiveBlocking(data[total:end])
		total += n
		if s.cb.OnRead != nil && n > 0 {
			s.cb.OnRead()
		}
		if err != nil {
			return total, ushellerr.Wrap("socket.ReadBlocking", ushellerr.KindPortErr, err)
		}
	}
	return total, nil
}

// Read is ReadBlocking bounded by timeout, returning the bytes already
// copied plus ushellerr.Timeout for the remainder on expiry.
func (s *Socket) Read(data []byte, timeout time.Duration) (int, error) {
	if err := s.requireDirection(Read, "socket.Read"); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(data) {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		end := total + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := s.stream.Receive(data[total:end], remaining)
		total += n
		if s.cb.OnRead != nil && n > 0 {
			s.cb.OnRead()
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// IsEmpty reports whether the underlying stream currently holds no bytes.
func (s *Socket) IsEmpty() (bool, error) {
	if s.stream == nil {
		return false, ushellerr.New("socket.IsEmpty", ushellerr.KindNotInit)
	}
	return s.stream.IsEmpty(), nil
}

// Print renders format/args through fmt (the platform formatter, per
// spec.md §9: the source's hand-rolled chunked printf is an optimisation
// artefact, not a contract) into a scratch buffer and writes it once.
// Supports the conversions spec.md §4.2 lists: %d %i %u %c %s %x %X %f %p %%.
func (s *Socket) Print(format string, args ...any) (int, error) {
	if err := validateConversions(format); err != nil {
		return 0, err
	}
	// %i is not a Go fmt verb; normalize it to %d before rendering.
	rendered := fmt.Sprintf(normalizeFormat(format), args...)
	return s.WriteBlocking([]byte(rendered))
}

// PrintVaList is Print taking a pre-built argument slice, for callers (like
// a command dispatcher) that assembled argv generically.
func (s *Socket) PrintVaList(format string, args []any) (int, error) {
	return s.Print(format, args...)
}

var validConversions = map[byte]bool{
	'd': true, 'i': true, 'u': true, 'c': true, 's': true,
	'x': true, 'X': true, 'f': true, 'p': true, '%': true,
}

func validateConversions(format string) error {
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) {
			return ushellerr.New("socket.Print", ushellerr.KindInvalidArgs)
		}
		if !validConversions[format[i]] {
			return ushellerr.New("socket.Print", ushellerr.KindInvalidArgs)
		}
	}
	return nil
}

func normalizeFormat(format string) string {
	out := make([]byte, 0, len(format))
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) && (format[i+1] == 'i' || format[i+1] == 'u') {
			out = append(out, '%', 'd')
			i++
			continue
		}
		out = append(out, format[i])
	}
	return string(out)
}
