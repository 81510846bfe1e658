package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// go.bug.st/serial ports satisfy it; a Read that hits the timeout returns
// (0, nil).
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Opener is a function type for opening serial ports.
// This allows for easier testing by replacing the opener function.
type Opener func(path string, opts PortOptions, readTimeout time.Duration) (TimeoutSerialPorter, error)
