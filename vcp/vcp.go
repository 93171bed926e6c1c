// Package vcp implements the Virtual Communication Port: the single
// worker that owns one hal.Channel and presents byte-stream sockets to any
// number of in-process sessions. See spec.md §4.4.
package vcp

import (
	"sync"
	"time"

	"github.com/vkosten/ushell-go/hal"
	"github.com/vkosten/ushell-go/osal"
	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/ushellerr"
)

// Event bits the worker waits on (spec.md §4.4's table).
const (
	EventRx osal.Bits = 1 << iota
	EventTx
	EventError
	EventInspect
)

// TransferMsg is the xfer-queue's element type: only transmission-completion
// acks travel on it (spec.md §3).
type TransferMsg int

const (
	TransferNone TransferMsg = iota
	TransferComplete
	TransferRxTxErr
)

// Config carries the configuration knobs from spec.md §6.
type Config struct {
	BufferSize    int           // USHELL_VCP_BUFFER_SIZE
	TxTimeout     time.Duration // USHELL_VCP_TX_TIMEOUT_MS
	InspectPeriod time.Duration // USHELL_VCP_TIMER_INSPECT_PERIOD_MS
	SessionMax    int           // USHELL_VCP_ACTIVE_SESSION_MAX
	RedirectStdio bool          // USHELL_VCP_REDIRECT_STDIO
}

// DefaultConfig returns the defaults spec.md §6 states.
func DefaultConfig() Config {
	return Config{
		BufferSize:    128,
		TxTimeout:     500 * time.Millisecond,
		InspectPeriod: time.Second,
		SessionMax:    6,
	}
}

type session struct {
	used      bool
	owner     any
	direction socket.Direction
	stream    *osal.StreamBuffer
	sock      *socket.Socket
}

// VCP owns one HAL channel, one worker, and a table of open sessions.
type VCP struct {
	cfg  Config
	hal  hal.Channel
	name string

	mu       sync.Mutex // print-lock: serialises session open/close and the worker's critical section
	sessions []session

	events    *osal.EventGroup
	xferQueue *osal.Queue[TransferMsg]
	scratch   []byte

	inspect *osal.Timer
	done    chan struct{}
	wg      sync.WaitGroup

	stdioRead  *socket.Socket
	stdioWrite *socket.Socket
}

// Init validates cfg, opens hal, and starts the worker and inspect timer.
// If usedForStdio is true, one read session and one write session are
// opened immediately and published as the process-wide stdio redirection
// targets (spec.md §6); callers read them back with Stdio().
func Init(h hal.Channel, cfg Config, usedForStdio bool, name string) (*VCP, error) {
	if h == nil || cfg.SessionMax <= 0 || cfg.BufferSize <= 0 {
		return nil, ushellerr.New("vcp.Init", ushellerr.KindInvalidArgs)
	}
	v := &VCP{
		cfg:       cfg,
		hal:       h,
		name:      name,
		sessions:  make([]session, cfg.SessionMax),
		events:    osal.NewEventGroup(),
		xferQueue: osal.NewQueue[TransferMsg](4),
		scratch:   make([]byte, cfg.BufferSize),
		done:      make(chan struct{}),
	}

	h.SetCallbacks(hal.Callbacks{
		RxReceived: func() { v.events.SetBits(EventRx) },
		TxComplete: func() { v.xferQueue.Put(TransferComplete) },
		RxTxError: func(error) {
			v.xferQueue.Put(TransferRxTxErr)
			v.events.SetBits(EventError)
		},
	})
	if err := h.Open(); err != nil {
		return nil, ushellerr.Wrap("vcp.Init", ushellerr.KindPortErr, err)
	}

	v.wg.Add(1)
	go v.workerLoop()

	v.inspect = osal.NewPeriodic(cfg.InspectPeriod, func() { v.events.SetBits(EventInspect) })

	if usedForStdio {
		rs, err := v.SessionOpen(stdioReadOwner{}, socket.Read)
		if err != nil {
			return nil, err
		}
		ws, err := v.SessionOpen(stdioWriteOwner{}, socket.Write)
		if err != nil {
			return nil, err
		}
		v.stdioRead = rs
		v.stdioWrite = ws
	}

	return v, nil
}

type stdioReadOwner struct{}
type stdioWriteOwner struct{}

// DeInit stops the worker and inspect timer, closes the HAL, and frees
// primitives. Any open sessions must have been closed first.
func (v *VCP) DeInit() error {
	v.inspect.Stop()
	close(v.done)
	v.wg.Wait()
	return ushellerr.Wrap("vcp.DeInit", ushellerr.KindPortErr, v.hal.Close())
}

// Stdio returns the stdio read and write sockets published at Init when
// usedForStdio was true, and false otherwise. Handing out the sockets is
// how a Go binary substitutes for "override the platform's character I/O
// syscalls" (spec.md §6) — there is no libc layer to intercept.
func (v *VCP) Stdio() (*socket.Socket, *socket.Socket, bool) {
	if v.stdioRead == nil || v.stdioWrite == nil {
		return nil, nil, false
	}
	return v.stdioRead, v.stdioWrite, true
}

// SessionOpen finds a free slot, creates a stream sized per Config, and
// returns a socket of the requested direction.
func (v *VCP) SessionOpen(owner any, direction socket.Direction) (*socket.Socket, error) {
	if owner == nil || (direction != socket.Read && direction != socket.Write) {
		return nil, ushellerr.New("vcp.SessionOpen", ushellerr.KindInvalidArgs)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	slot := -1
	for i := range v.sessions {
		if v.sessions[i].used && v.sessions[i].owner == owner {
			return nil, ushellerr.New("vcp.SessionOpen", ushellerr.KindInvalidArgs)
		}
		if slot < 0 && !v.sessions[i].used {
			slot = i
		}
	}
	if slot < 0 {
		return nil, ushellerr.New("vcp.SessionOpen", ushellerr.KindSessionSlot)
	}

	stream := osal.NewStreamBuffer(v.cfg.BufferSize)
	var cb socket.Callbacks
	if direction == socket.Write {
		cb.OnWrite = func() { v.events.SetBits(EventTx) }
	}
	sock, err := socket.Init(stream, socket.Config{Direction: direction, ChunkSize: v.cfg.BufferSize}, cb, owner)
	if err != nil {
		return nil, err
	}

	v.sessions[slot] = session{used: true, owner: owner, direction: direction, stream: stream, sock: sock}
	return sock, nil
}

// SessionClose tears down the session owned by owner.
func (v *VCP) SessionClose(owner any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.sessions {
		if v.sessions[i].used && v.sessions[i].owner == owner {
			v.sessions[i].sock.DeInit()
			v.sessions[i] = session{}
			return nil
		}
	}
	return ushellerr.New("vcp.SessionClose", ushellerr.KindSessionSlot)
}
