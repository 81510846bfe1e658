package controller

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionlink/internal/serialmux"
	"github.com/banshee-data/motionlink/internal/timeutil"
)

func newTestReader(t *testing.T) (*Reader, *serialmux.TestableSerialPort) {
	t.Helper()
	port := serialmux.NewTestableSerialPort()
	r := NewReader(port, WithClock(timeutil.NewMockClock(time.Unix(0, 0))))
	t.Cleanup(func() { r.Close() })
	return r, port
}

func TestReader_InitialStateIsZero(t *testing.T) {
	r, _ := newTestReader(t)
	assert.Equal(t, r3.Vec{}, r.Rotation())
	assert.False(t, r.LeftButton())
	assert.False(t, r.RightButton())
}

func TestReader_RefreshValidFrame(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,1,0,1.0,2.0,3.0")

	res, err := r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, Updated, res)
	assert.True(t, r.LeftButton())
	assert.False(t, r.RightButton())
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: -3}, r.Rotation())
}

func TestReader_RefreshIgnoresUnrecognizedFrame(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,1,1,1,2,3", "X,1,0,1,2,3")

	_, err := r.Refresh()
	require.NoError(t, err)
	before := r.State()

	res, err := r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res)
	if diff := cmp.Diff(before, r.State()); diff != "" {
		t.Errorf("state changed on unrecognized frame (-before +after):\n%s", diff)
	}
	assert.Equal(t, uint64(1), r.Stats().Unrecognized)
}

func TestReader_RefreshMalformedKeepsState(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,0,1,4,5,6", "L,1,0,--,2,3")

	_, err := r.Refresh()
	require.NoError(t, err)
	before := r.State()

	res, err := r.Refresh()
	assert.Equal(t, Unchanged, res)
	assert.ErrorIs(t, err, ErrMalformedField)
	assert.Equal(t, before, r.State())
	assert.Equal(t, uint64(1), r.Stats().Malformed)
}

func TestReader_RefreshShortFrameRejected(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,1,1")

	res, err := r.Refresh()
	assert.Equal(t, Unchanged, res)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Index)
	assert.Equal(t, State{}, r.State())
}

func TestReader_OverlongNoiseNeverCommits(t *testing.T) {
	r, port := newTestReader(t)
	port.AddReadData([]byte(strings.Repeat("x", 4352) + "L,1,1,9,9,9\n"))

	for i := 0; i < 3; i++ {
		res, _ := r.Refresh()
		assert.Equal(t, Unchanged, res, "refresh %d", i)
	}
	assert.Equal(t, State{}, r.State())
	assert.Zero(t, r.Stats().Updated)
}

func TestReader_RefreshTimeout(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,1,0,1,2,3")
	_, err := r.Refresh()
	require.NoError(t, err)

	res, err := r.Refresh()
	assert.Equal(t, Unchanged, res)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: -3}, r.Rotation())
	assert.Equal(t, uint64(1), r.Stats().Timeouts)
}

func TestReader_PartialLineCompletesNextRefresh(t *testing.T) {
	r, port := newTestReader(t)
	port.AddReadData([]byte("L,1,0,"))

	_, err := r.Refresh()
	assert.ErrorIs(t, err, ErrTimeout)

	port.AddReadData([]byte("7,8,9\n"))
	res, err := r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, Updated, res)
	assert.Equal(t, r3.Vec{X: 8, Y: 7, Z: -9}, r.Rotation())
}

func TestReader_RefreshIsIdempotent(t *testing.T) {
	r, port := newTestReader(t)
	port.AddLines("L,1,1,-1.5,2.5,0.5", "L,1,1,-1.5,2.5,0.5")

	_, err := r.Refresh()
	require.NoError(t, err)
	first := r.State()

	_, err = r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, first, r.State())
}

func TestReader_TransportErrorPropagates(t *testing.T) {
	r, port := newTestReader(t)
	unplugged := errors.New("device unplugged")
	port.ReadError = unplugged

	res, err := r.Refresh()
	assert.Equal(t, Unchanged, res)
	assert.ErrorIs(t, err, unplugged)
}

func TestReader_Close(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	r := NewReader(port)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, port.CloseCalls)

	_, err := r.Refresh()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_UsesFixedLinkSettings(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	var gotPath string
	var gotOpts serialmux.PortOptions
	var gotTimeout time.Duration

	orig := openPort
	t.Cleanup(func() { openPort = orig })
	openPort = func(path string, opts serialmux.PortOptions, timeout time.Duration) (serialmux.TimeoutSerialPorter, error) {
		gotPath, gotOpts, gotTimeout = path, opts, timeout
		return port, nil
	}

	r, err := Open("/dev/ttyUSB0")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 9600, gotOpts.BaudRate)
	assert.Equal(t, 200*time.Millisecond, gotTimeout)
}

func TestOpen_Error(t *testing.T) {
	orig := openPort
	t.Cleanup(func() { openPort = orig })
	busy := errors.New("port busy")
	openPort = func(string, serialmux.PortOptions, time.Duration) (serialmux.TimeoutSerialPorter, error) {
		return nil, busy
	}

	r, err := Open("/dev/ttyUSB0")
	assert.Nil(t, r)
	assert.ErrorIs(t, err, busy)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
