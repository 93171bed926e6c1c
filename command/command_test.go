package command

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkosten/ushell-go/osal"
	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/xmodem"
)

// harness wires a command's read/write sockets to streams a test can feed
// and drain directly, mirroring the xmodem package's receiver harness.
type harness struct {
	readStream  *osal.StreamBuffer
	writeStream *osal.StreamBuffer
	read        *socket.Socket
	write       *socket.Socket
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	readStream := osal.NewStreamBuffer(256)
	writeStream := osal.NewStreamBuffer(256)

	read, err := socket.Init(readStream, socket.Config{Direction: socket.Read, ChunkSize: 64}, socket.Callbacks{}, nil)
	require.NoError(t, err)
	write, err := socket.Init(writeStream, socket.Config{Direction: socket.Write, ChunkSize: 64}, socket.Callbacks{}, nil)
	require.NoError(t, err)

	return &harness{readStream: readStream, writeStream: writeStream, read: read, write: write}
}

func (h *harness) drainWrite(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	nr, err := h.writeStream.Receive(buf, time.Second)
	require.NoError(t, err)
	return buf[:nr]
}

// drainAvailable reads whatever lands within timeout, up to maxLen bytes,
// for output whose exact length isn't known ahead of time (like whoami's
// username).
func (h *harness) drainAvailable(maxLen int, timeout time.Duration) []byte {
	buf := make([]byte, maxLen)
	n, _ := h.writeStream.Receive(buf, timeout)
	return buf[:n]
}

func TestRegistryDispatchUnknownCommand(t *testing.T) {
	r := NewRegistry()
	h := newHarness(t)
	err := r.Dispatch(Context{}, h.read, h.write, []string{"nope"})
	require.Error(t, err)
}

func TestRegistryDispatchEmptyArgv(t *testing.T) {
	r := NewRegistry()
	h := newHarness(t)
	err := r.Dispatch(Context{}, h.read, h.write, nil)
	require.Error(t, err)
}

func TestRegistryDispatchRunsRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", Echo)
	h := newHarness(t)

	require.NoError(t, r.Dispatch(Context{}, h.read, h.write, []string{"echo", "hi"}))
	require.Equal(t, "hi\n", string(h.drainWrite(t, 3)))
}

func TestEcho(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, Echo(Context{}, h.read, h.write, []string{"echo", "hello", "world"}))
	require.Equal(t, "hello world\n", string(h.drainWrite(t, 12)))
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, Whoami(Context{}, h.read, h.write, []string{"whoami"}))
	out := h.drainAvailable(256, 50*time.Millisecond)
	require.NotEmpty(t, out)
}

func TestRecvWritesTransferToOpenedSink(t *testing.T) {
	dir := t.TempDir()
	var openedPath string
	opener := func(path string) (*os.File, error) {
		openedPath = filepath.Join(dir, filepath.Base(path))
		return os.Create(openedPath)
	}

	h := newHarness(t)
	recv := Recv(xmodem.DefaultConfig(), opener)

	done := make(chan error, 1)
	go func() { done <- recv(Context{}, h.read, h.write, []string{"recv", "out.bin"}) }()

	// Drive the XMODEM handshake/transfer the way the xmodem package's own
	// tests do: wait for 'C', send one packet, send EOT.
	cByte := h.drainWrite(t, 1)
	require.Equal(t, byte('C'), cByte[0])

	data := bytes.Repeat([]byte{'Q'}, xmodem.PacketSize)
	crc := xmodem.CRC16(data)
	packet := append([]byte{xmodem.SOH, 1, ^byte(1)}, data...)
	packet = append(packet, byte(crc>>8), byte(crc))
	_, err := h.readStream.SendBlocking(packet)
	require.NoError(t, err)

	ack := h.drainWrite(t, 1)
	require.Equal(t, xmodem.ACK, ack[0])

	_, err = h.readStream.SendBlocking([]byte{xmodem.EOT})
	require.NoError(t, err)
	ack = h.drainWrite(t, 1)
	require.Equal(t, xmodem.ACK, ack[0])

	require.NoError(t, <-done)

	got, err := os.ReadFile(openedPath)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
