package command

import (
	"context"
	"os"

	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/ushellerr"
	"github.com/vkosten/ushell-go/xmodem"
)

// SinkOpener opens the destination for a recv invocation given argv[1],
// the target path the caller typed. Swappable so tests can redirect recv
// to a file of their choosing, such as one under a temporary directory.
type SinkOpener func(path string) (*os.File, error)

// Recv returns a command.Func that receives one XMODEM/CRC transfer over
// the session's own read/write sockets into the file named by argv[1].
// A nil opener defaults to os.Create.
func Recv(cfg xmodem.Config, opener SinkOpener) Func {
	if opener == nil {
		opener = func(path string) (*os.File, error) { return os.Create(path) }
	}
	return func(ctx Context, read, write *socket.Socket, argv []string) error {
		if len(argv) != 2 {
			return ushellerr.New("command.Recv", ushellerr.KindInvalidArgs)
		}
		sink, err := opener(argv[1])
		if err != nil {
			return ushellerr.Wrap("command.Recv", ushellerr.KindPortErr, err)
		}
		defer sink.Close()

		r, err := xmodem.New(cfg, read, write, sink)
		if err != nil {
			return err
		}
		return r.Run(context.Background())
	}
}
