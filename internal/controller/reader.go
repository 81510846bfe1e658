package controller

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionlink/internal/serialmux"
	"github.com/banshee-data/motionlink/internal/timeutil"
)

const (
	// BaudRate is fixed by the controller firmware.
	BaudRate = 9600
	// ReadTimeout bounds a single Refresh.
	ReadTimeout = 200 * time.Millisecond
)

var (
	// ErrTimeout is returned by Refresh when no line arrived in time. It is
	// expected and callers should retry on the next tick.
	ErrTimeout = serialmux.ErrTimeout
	// ErrClosed is returned by Refresh after Close.
	ErrClosed = errors.New("controller reader is closed")
)

// openPort is swapped out by tests.
var openPort serialmux.Opener = serialmux.OpenPort

// Reader owns the serial link to one controller and holds the last committed
// State. A Reader must be used from a single goroutine.
type Reader struct {
	port   serialmux.SerialPorter
	lines  *serialmux.LineReader
	state  State
	stats  Stats
	closed bool
}

// Stats counts Refresh outcomes since the Reader was created.
type Stats struct {
	Updated      uint64 `json:"updated"`
	Timeouts     uint64 `json:"timeouts"`
	Unrecognized uint64 `json:"unrecognized"`
	Malformed    uint64 `json:"malformed"`
}

// Option configures a Reader created by NewReader.
type Option func(*readerOptions)

type readerOptions struct {
	clock timeutil.Clock
}

// WithClock sets the clock used to enforce the read timeout.
func WithClock(c timeutil.Clock) Option {
	return func(o *readerOptions) { o.clock = c }
}

// Open opens the controller on portPath at 9600 8N1 with a 200ms read timeout.
func Open(portPath string) (*Reader, error) {
	port, err := openPort(portPath, serialmux.PortOptions{BaudRate: BaudRate}, ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("open controller: %w", err)
	}
	return NewReader(port), nil
}

// NewReader wraps an already open transport. The Reader takes ownership of
// port and closes it on Close.
func NewReader(port serialmux.SerialPorter, opts ...Option) *Reader {
	o := readerOptions{clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{
		port:  port,
		lines: serialmux.NewLineReader(port, ReadTimeout, o.clock),
	}
}

// Refresh reads one line and commits it if it is a valid status frame.
//
// A line without the sentinel is dropped and reported as (Unchanged, nil).
// A frame with a bad field returns a *FieldError matching ErrMalformedField.
// In every non-Updated case the stored state is left as it was.
func (r *Reader) Refresh() (Result, error) {
	if r.closed {
		return Unchanged, ErrClosed
	}

	line, err := r.lines.ReadLine()
	if err != nil {
		if errors.Is(err, serialmux.ErrTimeout) {
			r.stats.Timeouts++
			return Unchanged, ErrTimeout
		}
		return Unchanged, err
	}

	state, err := ParseFrame(line)
	switch {
	case errors.Is(err, ErrUnrecognizedFrame):
		r.stats.Unrecognized++
		return Unchanged, nil
	case err != nil:
		r.stats.Malformed++
		return Unchanged, err
	}

	r.state = state
	r.stats.Updated++
	return Updated, nil
}

// Rotation returns the last committed rotation.
func (r *Reader) Rotation() r3.Vec { return r.state.Rotation }

// LeftButton returns the last committed left button state.
func (r *Reader) LeftButton() bool { return r.state.LeftButton }

// RightButton returns the last committed right button state.
func (r *Reader) RightButton() bool { return r.state.RightButton }

// State returns a copy of the last committed state.
func (r *Reader) State() State { return r.state }

// Stats returns the Refresh outcome counters.
func (r *Reader) Stats() Stats { return r.stats }

// Close releases the serial port. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.port.Close()
}
