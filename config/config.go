// Package config carries the knobs spec.md §6 names plus the additional
// transport/session/log settings SPEC_FULL.md adds, and loads overrides
// from a JSON file the way the teacher's server/client configs do.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/vkosten/ushell-go/ushellerr"
)

// Config is the full set of ushelld knobs.
type Config struct {
	// Port selects the transport: "loopback" or a device path like
	// "/dev/ttyUSB0" for hal.Serial.
	Port     string `json:"port"`
	BaudRate int    `json:"baud"`

	BufferSize    int  `json:"buffer_size"`    // USHELL_VCP_BUFFER_SIZE
	TxTimeoutMs   int  `json:"tx_timeout_ms"`  // USHELL_VCP_TX_TIMEOUT_MS
	InspectMs     int  `json:"inspect_ms"`     // USHELL_VCP_TIMER_INSPECT_PERIOD_MS
	SessionMax    int  `json:"session_max"`    // USHELL_VCP_ACTIVE_SESSION_MAX
	RedirectStdio bool `json:"redirect_stdio"` // USHELL_VCP_REDIRECT_STDIO

	XmodemPacketTimeoutMs int `json:"xmodem_packet_timeout_ms"`
	XmodemMaxErrors       int `json:"xmodem_max_errors"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Default returns the defaults spec.md §6 and this repo's xmodem package
// state.
func Default() Config {
	return Config{
		Port:                  "loopback",
		BaudRate:              115200,
		BufferSize:            128,
		TxTimeoutMs:           500,
		InspectMs:             1000,
		SessionMax:            6,
		RedirectStdio:         false,
		XmodemPacketTimeoutMs: 1000,
		XmodemMaxErrors:       10,
		LogLevel:              "info",
	}
}

// LoadJSON decodes path over cfg, leaving fields the file omits untouched.
func LoadJSON(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return ushellerr.Wrap("config.LoadJSON", ushellerr.KindInvalidArgs, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return ushellerr.Wrap("config.LoadJSON", ushellerr.KindInvalidArgs, err)
	}
	return nil
}

// TxTimeout returns TxTimeoutMs as a time.Duration.
func (c Config) TxTimeout() time.Duration { return time.Duration(c.TxTimeoutMs) * time.Millisecond }

// InspectPeriod returns InspectMs as a time.Duration.
func (c Config) InspectPeriod() time.Duration { return time.Duration(c.InspectMs) * time.Millisecond }

// XmodemPacketTimeout returns XmodemPacketTimeoutMs as a time.Duration.
func (c Config) XmodemPacketTimeout() time.Duration {
	return time.Duration(c.XmodemPacketTimeoutMs) * time.Millisecond
}
