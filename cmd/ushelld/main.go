package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/vkosten/ushell-go/command"
	"github.com/vkosten/ushell-go/config"
	"github.com/vkosten/ushell-go/hal"
	"github.com/vkosten/ushell-go/logging"
	"github.com/vkosten/ushell-go/socket"
	"github.com/vkosten/ushell-go/vcp"
	"github.com/vkosten/ushell-go/xmodem"
)

// serialPollTimeout bounds how long Serial.Read waits for input per call;
// it is not a protocol timeout, just the granularity at which the HAL
// notices new bytes.
const serialPollTimeout = 100 * time.Millisecond

// VERSION is injected by build flags.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "ushelld"
	myApp.Usage = "uShell virtual communication port daemon"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "port",
			Value: "loopback",
			Usage: `serial device path, or "loopback" for the in-memory demo transport`,
		},
		cli.IntFlag{
			Name:  "baud",
			Value: 115200,
			Usage: "serial baud rate; accepted but not applied, the device keeps its current line settings",
		},
		cli.IntFlag{
			Name:  "buffer",
			Value: 128,
			Usage: "VCP session buffer size in bytes",
		},
		cli.IntFlag{
			Name:  "tx-timeout-ms",
			Value: 500,
			Usage: "tx-complete handshake timeout in milliseconds",
		},
		cli.IntFlag{
			Name:  "inspect-ms",
			Value: 1000,
			Usage: "periodic self-poll interval in milliseconds",
		},
		cli.IntFlag{
			Name:  "session-max",
			Value: 6,
			Usage: "maximum concurrent sessions",
		},
		cli.BoolFlag{
			Name:  "stdio",
			Usage: "open a stdio-redirection session pair in addition to the shell session",
		},
		cli.IntFlag{
			Name:  "xmodem-packet-timeout-ms",
			Value: 1000,
			Usage: "XMODEM inter-byte timeout in milliseconds",
		},
		cli.IntFlag{
			Name:  "xmodem-max-errors",
			Value: 10,
			Usage: "XMODEM error budget before giving up with CAN",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "JSON config file overriding the flags above",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "log file path; stderr if empty",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	cfg.Port = c.String("port")
	cfg.BaudRate = c.Int("baud")
	cfg.BufferSize = c.Int("buffer")
	cfg.TxTimeoutMs = c.Int("tx-timeout-ms")
	cfg.InspectMs = c.Int("inspect-ms")
	cfg.SessionMax = c.Int("session-max")
	cfg.RedirectStdio = c.Bool("stdio")
	cfg.XmodemPacketTimeoutMs = c.Int("xmodem-packet-timeout-ms")
	cfg.XmodemMaxErrors = c.Int("xmodem-max-errors")

	if path := c.String("c"); path != "" {
		if err := config.LoadJSON(&cfg, path); err != nil {
			return errors.Wrap(err, "loading config file")
		}
	}

	if path := c.String("log"); path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		defer f.Close()
		cfg.LogFile = path
		logging.Register("ushelld", logging.Config{Level: logging.LevelInfo, Output: f})
	} else {
		logging.Register("ushelld", logging.DefaultConfig())
	}
	logger := logging.For("ushelld")

	var channel hal.Channel
	if cfg.Port == "loopback" {
		a, _ := hal.NewLoopbackPair("ushelld", "demo-peer")
		channel = a
	} else {
		// Baud-rate configuration lives in the termios layer Daedaluz-goserial
		// owns; this HAL only needs the fd, so cfg.BaudRate is accepted on
		// the command line for forward compatibility but not yet applied.
		channel = hal.NewSerial(cfg.Port, serialPollTimeout, nil)
	}

	v, err := vcp.Init(channel, vcp.Config{
		BufferSize:    cfg.BufferSize,
		TxTimeout:     cfg.TxTimeout(),
		InspectPeriod: cfg.InspectPeriod(),
		SessionMax:    cfg.SessionMax,
		RedirectStdio: cfg.RedirectStdio,
	}, cfg.RedirectStdio, "ushelld")
	if err != nil {
		return errors.Wrap(err, "initializing VCP")
	}
	defer v.DeInit()

	logger.Infof("listening on %s, session slots %d", cfg.Port, cfg.SessionMax)

	type shellReadOwner struct{}
	type shellWriteOwner struct{}
	readSock, err := v.SessionOpen(shellReadOwner{}, socket.Read)
	if err != nil {
		return errors.Wrap(err, "opening shell read session")
	}
	writeSock, err := v.SessionOpen(shellWriteOwner{}, socket.Write)
	if err != nil {
		return errors.Wrap(err, "opening shell write session")
	}
	defer v.SessionClose(shellReadOwner{})
	defer v.SessionClose(shellWriteOwner{})

	reg := command.NewRegistry()
	reg.Register("echo", command.Echo)
	reg.Register("whoami", command.Whoami)
	reg.Register("recv", command.Recv(xmodem.Config{
		PacketTimeout: cfg.XmodemPacketTimeout(),
		MaxErrors:     cfg.XmodemMaxErrors,
	}, nil))

	return shellLoop(reg, readSock, writeSock, logger)
}

// shellLoop reads newline-terminated lines off readSock a byte at a time
// (socket reads fill the whole buffer they are given, and the socket has no
// notion of line buffering) and dispatches each as a command.
func shellLoop(reg *command.Registry, readSock, writeSock *socket.Socket, logger *logging.Logger) error {
	var line strings.Builder
	one := make([]byte, 1)
	for {
		n, err := readSock.Read(one, 24*time.Hour)
		if err != nil {
			return errors.Wrap(err, "reading shell input")
		}
		if n == 0 {
			continue
		}
		if one[0] == '\n' {
			argv := strings.Fields(line.String())
			line.Reset()
			if len(argv) == 0 {
				continue
			}
			if err := reg.Dispatch(command.Context{Name: argv[0]}, readSock, writeSock, argv); err != nil {
				logger.Warnf("command %q failed: %v", argv[0], err)
				writeSock.Print("error: %s\n", err.Error())
			}
			continue
		}
		line.WriteByte(one[0])
	}
}
