package serialmux

import (
	"bytes"
	"errors"
	"os"
	"time"

	"github.com/banshee-data/motionlink/internal/timeutil"
)

// MaxLineLength bounds how many bytes may accumulate without a newline before
// the pending data is discarded.
const MaxLineLength = 4096

var (
	// ErrTimeout is returned when no complete line arrived within the read
	// timeout. Any partial line stays buffered for the next call.
	ErrTimeout = errors.New("serial read timed out")
	// ErrLineTooLong is returned when MaxLineLength bytes arrive without a
	// newline. The pending bytes and the rest of that line are dropped.
	ErrLineTooLong = errors.New("serial line exceeds maximum length")
)

// LineReader frames newline-terminated lines from a SerialPorter. It is not
// safe for concurrent use.
type LineReader struct {
	port    SerialPorter
	clock   timeutil.Clock
	timeout time.Duration
	pending []byte
	chunk   []byte
	// discarding is set after ErrLineTooLong until the rest of the dropped
	// line, up to its newline, has been skipped.
	discarding bool
}

// NewLineReader creates a LineReader. A zero timeout disables the deadline, in
// which case only a (0, nil) read from the port reports ErrTimeout.
func NewLineReader(port SerialPorter, timeout time.Duration, clock timeutil.Clock) *LineReader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LineReader{
		port:    port,
		clock:   clock,
		timeout: timeout,
		chunk:   make([]byte, 256),
	}
}

// ReadLine returns the next line without its terminator (a trailing "\r" is
// stripped too). It blocks for at most the configured timeout. When the port
// is a TimeoutSerialPorter each read is limited to the time left.
func (l *LineReader) ReadLine() (string, error) {
	start := l.clock.Now()
	for {
		i := bytes.IndexByte(l.pending, '\n')
		switch {
		case l.discarding && i >= 0:
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			l.discarding = false
			continue
		case l.discarding:
			l.pending = l.pending[:0]
		case i >= 0:
			line := string(bytes.TrimSuffix(l.pending[:i], []byte("\r")))
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			return line, nil
		case len(l.pending) > MaxLineLength:
			l.pending = l.pending[:0]
			l.discarding = true
			return "", ErrLineTooLong
		}

		if l.timeout > 0 {
			elapsed := l.clock.Since(start)
			if elapsed >= l.timeout {
				return "", ErrTimeout
			}
			if tp, ok := l.port.(TimeoutSerialPorter); ok {
				if err := tp.SetReadTimeout(l.timeout - elapsed); err != nil {
					return "", err
				}
			}
		}

		n, err := l.port.Read(l.chunk)
		l.pending = append(l.pending, l.chunk[:n]...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", err
		}
		if n == 0 {
			return "", ErrTimeout
		}
	}
}

// Buffered returns the number of bytes received but not yet returned as a line.
func (l *LineReader) Buffered() int {
	return len(l.pending)
}
