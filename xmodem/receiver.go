// Package xmodem implements the receiver half of the 128-byte XMODEM/CRC
// protocol described in spec.md §4.5, riding atop a pair of sockets rather
// than a raw port.
package xmodem

import (
	"context"
	"io"
	"time"

	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/ushellerr"
)

// Protocol control bytes.
const (
	SOH byte = 0x01
	STX byte = 0x02
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
)

// PacketSize is the fixed 128-byte XMODEM/CRC payload size. STX/1K framing
// is unsupported, matching spec.md §6's XMODEM_MAX_PACKET_SIZE.
const PacketSize = 128

// State is a node in the receiver's state machine (spec.md §4.5).
type State int

const (
	StateStart State = iota
	StateAwaitSOH
	StateBlockNum
	StateBlockNeg
	StateData
	StateCRC0
	StateCRC1
	StateProcessPacket
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateAwaitSOH:
		return "AwaitSoh"
	case StateBlockNum:
		return "BlockNum"
	case StateBlockNeg:
		return "BlockNeg"
	case StateData:
		return "Data"
	case StateCRC0:
		return "Crc0"
	case StateCRC1:
		return "Crc1"
	case StateProcessPacket:
		return "ProcessPacket"
	case StateSuccess:
		return "Success"
	case StateFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Config carries the two tunable XMODEM knobs from spec.md §6; the packet
// size is fixed at PacketSize.
type Config struct {
	PacketTimeout time.Duration // default 1000ms
	MaxErrors     int           // default 10
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{PacketTimeout: 1000 * time.Millisecond, MaxErrors: 10}
}

// Receiver is constructed on-demand and lives for exactly one transfer.
type Receiver struct {
	cfg Config

	read  *socket.Socket
	write *socket.Socket
	sink  io.Writer

	state            State
	blockNumAccepted byte // last block number successfully accepted
	curBlock         byte
	repeating        bool
	packetBuf        [PacketSize]byte
	packetPos        int
	expectedCRC      uint16
	errorCount       int
	failureErr       error
}

// New constructs a receiver for one transfer. read must be a read socket,
// write a write socket; sink receives each accepted 128-byte payload in
// order.
func New(cfg Config, read, write *socket.Socket, sink io.Writer) (*Receiver, error) {
	if read == nil || write == nil || sink == nil {
		return nil, ushellerr.New("xmodem.New", ushellerr.KindXmodemArg)
	}
	if cfg.PacketTimeout <= 0 || cfg.MaxErrors <= 0 {
		return nil, ushellerr.New("xmodem.New", ushellerr.KindXmodemArg)
	}
	return &Receiver{cfg: cfg, read: read, write: write, sink: sink, state: StateStart}, nil
}

// State reports the receiver's current state, mainly for tests and logging.
func (r *Receiver) State() State { return r.state }

// ErrorCount reports the current non-fatal error counter.
func (r *Receiver) ErrorCount() int { return r.errorCount }

// Run drives the state machine to completion: StateSuccess on a clean EOT,
// StateFailure on CAN, sink failure, or error-budget exhaustion. ctx
// cancellation aborts an in-progress transfer (there is no other way to
// interrupt a receiver that has no more interrupt-context "close the port"
// signal reachable from Go).
func (r *Receiver) Run(ctx context.Context) error {
	first, err := r.handshake(ctx)
	if err != nil {
		return err
	}
	r.state = StateAwaitSOH
	if err := r.step(first); err != nil {
		return err
	}
	for r.state != StateSuccess && r.state != StateFailure {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b, ok, err := r.readByte(r.cfg.PacketTimeout)
		if err != nil {
			return err
		}
		if !ok {
			if err := r.onIdleTimeout(); err != nil {
				return err
			}
			continue
		}
		if err := r.step(b); err != nil {
			return err
		}
	}
	if r.state == StateFailure {
		return r.failureErr
	}
	return nil
}

// handshake emits 'C' and waits PacketTimeout for the first byte, re-emitting
// on every timeout. Each silent retry counts against the same error budget
// that governs the rest of the transfer (spec.md §8 scenario 6 reaches
// Failure purely from PacketTimeout-spaced silence, so handshake retries
// must be able to exhaust it too); ctx cancellation aborts early since
// there is no other "give up" signal reachable once a caller wants out.
func (r *Receiver) handshake(ctx context.Context) (byte, error) {
	if err := r.writeByte('C'); err != nil {
		return 0, ushellerr.Wrap("xmodem.handshake", ushellerr.KindPortErr, err)
	}
	for {
		b, ok, err := r.readByte(r.cfg.PacketTimeout)
		if err != nil {
			return 0, err
		}
		if ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		r.errorCount++
		if r.budgetExhausted() {
			return 0, r.fail(ushellerr.New("xmodem.handshake", ushellerr.KindXmodemTimeout))
		}
		if err := r.writeByte('C'); err != nil {
			return 0, ushellerr.Wrap("xmodem.handshake", ushellerr.KindPortErr, err)
		}
	}
}

func (r *Receiver) readByte(timeout time.Duration) (byte, bool, error) {
	var buf [1]byte
	n, err := r.read.Read(buf[:], timeout)
	if n == 1 {
		return buf[0], true, nil
	}
	if err != nil && ushellerr.Of(err) == ushellerr.KindTimeout {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ushellerr.Wrap("xmodem.readByte", ushellerr.KindPortErr, err)
	}
	return 0, false, nil
}

func (r *Receiver) writeByte(b byte) error {
	_, err := r.write.WriteBlocking([]byte{b})
	return err
}

// onIdleTimeout handles "inter-byte idle > PacketTimeout in any
// non-terminal state": count an error, NAK, return to AwaitSoh.
func (r *Receiver) onIdleTimeout() error {
	r.errorCount++
	if r.budgetExhausted() {
		return r.fail(ushellerr.New("xmodem.Run", ushellerr.KindXmodemTimeout))
	}
	if err := r.writeByte(NAK); err != nil {
		return ushellerr.Wrap("xmodem.onIdleTimeout", ushellerr.KindPortErr, err)
	}
	r.state = StateAwaitSOH
	r.packetPos = 0
	return nil
}

func (r *Receiver) budgetExhausted() bool { return r.errorCount >= r.cfg.MaxErrors }

// fail transitions to StateFailure, emits CAN, and records the terminal
// error. CAN emission failure is reported instead if the write itself
// fails — either way the caller gets a non-nil error.
func (r *Receiver) fail(reason error) error {
	r.state = StateFailure
	r.failureErr = reason
	if err := r.writeByte(CAN); err != nil {
		r.failureErr = ushellerr.Wrap("xmodem.fail", ushellerr.KindPortErr, err)
	}
	return r.failureErr
}

func (r *Receiver) garbage() error {
	r.errorCount++
	if r.budgetExhausted() {
		return r.fail(ushellerr.New("xmodem.Run", ushellerr.KindXmodemUnexpected))
	}
	r.state = StateAwaitSOH
	r.packetPos = 0
	return nil
}

// step feeds one grammar byte to the state machine.
func (r *Receiver) step(b byte) error {
	switch r.state {
	case StateAwaitSOH:
		switch b {
		case SOH, STX:
			r.packetPos = 0
			r.state = StateBlockNum
			return nil
		case EOT:
			if err := r.writeByte(ACK); err != nil {
				return ushellerr.Wrap("xmodem.step", ushellerr.KindPortErr, err)
			}
			r.state = StateSuccess
			return nil
		default:
			return r.garbage()
		}

	case StateBlockNum:
		expected := r.blockNumAccepted + 1
		switch {
		case b == expected:
			r.curBlock = expected
			r.repeating = false
			r.state = StateBlockNeg
		case b == r.blockNumAccepted:
			r.curBlock = r.blockNumAccepted
			r.repeating = true
			r.state = StateBlockNeg
		case b == SOH || b == STX:
			r.packetPos = 0
			r.state = StateBlockNum
		case b == CAN:
			return r.fail(ushellerr.New("xmodem.Run", ushellerr.KindXmodemUnexpected))
		default:
			return r.garbage()
		}
		return nil

	case StateBlockNeg:
		if b == ^r.curBlock {
			r.packetPos = 0
			r.state = StateData
			return nil
		}
		return r.garbage()

	case StateData:
		r.packetBuf[r.packetPos] = b
		r.packetPos++
		if r.packetPos == PacketSize {
			r.state = StateCRC0
		}
		return nil

	case StateCRC0:
		r.expectedCRC = uint16(b) << 8
		r.state = StateCRC1
		return nil

	case StateCRC1:
		r.expectedCRC |= uint16(b)
		computed := CRC16(r.packetBuf[:])
		if computed != r.expectedCRC {
			r.errorCount++
			if r.budgetExhausted() {
				return r.fail(ushellerr.New("xmodem.Run", ushellerr.KindXmodemCRC))
			}
			if err := r.writeByte(NAK); err != nil {
				return ushellerr.Wrap("xmodem.step", ushellerr.KindPortErr, err)
			}
			r.state = StateAwaitSOH
			return nil
		}
		if r.repeating {
			// Resolved Open Question (spec.md §9): ACK a duplicate so the
			// sender stops retransmitting, but do not advance or re-sink.
			if err := r.writeByte(ACK); err != nil {
				return ushellerr.Wrap("xmodem.step", ushellerr.KindPortErr, err)
			}
			r.state = StateAwaitSOH
			return nil
		}
		r.state = StateProcessPacket
		return r.processPacket()

	default:
		return nil
	}
}

func (r *Receiver) processPacket() error {
	if _, err := r.sink.Write(r.packetBuf[:]); err != nil {
		return r.fail(ushellerr.Wrap("xmodem.processPacket", ushellerr.KindPortErr, err))
	}
	if err := r.writeByte(ACK); err != nil {
		return ushellerr.Wrap("xmodem.processPacket", ushellerr.KindPortErr, err)
	}
	r.blockNumAccepted++
	r.packetPos = 0
	r.errorCount = 0
	r.state = StateAwaitSOH
	return nil
}
