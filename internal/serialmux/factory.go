package serialmux

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenPort opens the serial device at path with go.bug.st/serial and applies
// the read timeout. The returned port is owned by the caller.
func OpenPort(path string, opts PortOptions, readTimeout time.Duration) (TimeoutSerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return port, nil
}

var _ Opener = OpenPort
