package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/motionlink/internal/monitoring"
)

// ErrPortClosed is returned by the test ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable behaviour
// for testing. An empty read buffer behaves like a go.bug.st/serial read timeout
// and returns (0, nil) unless BlockReads is set.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// ReadChunk caps how many bytes a single Read returns (0 means no cap)
	ReadChunk int

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls records the number of Close calls
	CloseCalls int

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer, optionally simulating errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, ErrPortClosed
		}
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	if t.ReadChunk > 0 && len(p) > t.ReadChunk {
		p = p[:t.ReadChunk]
	}
	return t.ReadBuffer.Read(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.CloseCalls++
	t.readCond.Broadcast()

	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// AddLines queues each line followed by a newline.
func (t *TestableSerialPort) AddLines(lines ...string) {
	for _, line := range lines {
		t.AddReadData([]byte(line + "\n"))
	}
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// FixturePort replays fixture lines in a loop, one every interval, for running
// without controller hardware.
type FixturePort struct {
	r    *io.PipeReader
	done chan struct{}
	once sync.Once
}

// NewFixturePort starts replaying lines. It panics if lines is empty.
func NewFixturePort(lines []string, interval time.Duration) *FixturePort {
	if len(lines) == 0 {
		panic("serialmux: fixture port needs at least one line")
	}
	r, w := io.Pipe()
	p := &FixturePort{r: r, done: make(chan struct{})}
	monitoring.Logf("replaying %d fixture lines every %s", len(lines), interval)

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(lines) {
			select {
			case <-p.done:
				return
			case <-ticker.C:
			}
			if _, err := w.Write([]byte(lines[i] + "\n")); err != nil {
				return
			}
		}
	}()

	return p
}

func (p *FixturePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// SetReadTimeout is accepted for interface compatibility. Reads block until
// the next fixture line, so the replay interval must be shorter than any read
// timeout the caller relies on.
func (p *FixturePort) SetReadTimeout(time.Duration) error { return nil }

// Close stops the replay goroutine and unblocks pending reads.
func (p *FixturePort) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.r.CloseWithError(ErrPortClosed)
	})
	return nil
}
