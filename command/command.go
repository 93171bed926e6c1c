// Package command implements the shell command dispatcher: a name-to-Func
// table commands register into, driven by one pair of read/write sockets
// per invocation the way every other uShell consumer is driven by a
// socket pair rather than a raw port.
package command

import (
	"os/user"
	"strings"

	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/ushellerr"
	"github.com/vkosten/ushell-go/xmodem"
)

// Context carries the per-invocation state a command gets beyond its
// argv: the name it was invoked under.
type Context struct {
	Name string
}

// Func is the shape every registered command implements: read and write
// are already direction-fixed sockets bound to the session that invoked
// the command.
type Func func(ctx Context, read, write *socket.Socket, argv []string) error

// Registry maps command names to their Func.
type Registry struct {
	commands map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Func)}
}

// Register binds name to fn, replacing any prior registration.
func (r *Registry) Register(name string, fn Func) {
	r.commands[name] = fn
}

// Dispatch looks up argv[0] and runs it. KindInvalidArgs is returned for
// an empty argv or an unknown command name — the caller (the line reader)
// is expected to print the error back to the session's write socket.
func (r *Registry) Dispatch(ctx Context, read, write *socket.Socket, argv []string) error {
	if len(argv) == 0 {
		return ushellerr.New("command.Dispatch", ushellerr.KindInvalidArgs)
	}
	fn, ok := r.commands[argv[0]]
	if !ok {
		return ushellerr.New("command.Dispatch", ushellerr.KindInvalidArgs)
	}
	return fn(ctx, read, write, argv)
}

// RegisterBuiltins wires the demo command set every ushelld session gets:
// echo, whoami, and recv.
func RegisterBuiltins(r *Registry) {
	r.Register("echo", Echo)
	r.Register("whoami", Whoami)
	r.Register("recv", Recv(xmodem.DefaultConfig(), nil))
}

// Echo writes argv[1:] back, space-joined, with a trailing newline.
func Echo(ctx Context, read, write *socket.Socket, argv []string) error {
	_, err := write.Print("%s\n", strings.Join(argv[1:], " "))
	return err
}

// Whoami reports the OS user running ushelld. Unlike a command that
// silently prints "unknown" on failure, the lookup error propagates so a
// caller piping output can detect the failure (spec.md §9's resolved
// Open Question on the source's swallowed-error whoami bug).
func Whoami(ctx Context, read, write *socket.Socket, argv []string) error {
	u, err := user.Current()
	if err != nil {
		return ushellerr.Wrap("command.Whoami", ushellerr.KindPortErr, err)
	}
	_, err = write.Print("%s\n", u.Username)
	return err
}
