package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionlink/internal/controller"
	"github.com/banshee-data/motionlink/internal/monitoring"
	"github.com/banshee-data/motionlink/internal/serialmux"
	"github.com/banshee-data/motionlink/internal/timeutil"
)

type fakeRecorder struct {
	mu      sync.Mutex
	states  []controller.State
	err     error
	written chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{written: make(chan struct{}, 16)}
}

func (f *fakeRecorder) Record(_ time.Time, s controller.State) error {
	f.mu.Lock()
	f.states = append(f.states, s)
	f.mu.Unlock()
	f.written <- struct{}{}
	return f.err
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

type fixture struct {
	port     *serialmux.TestableSerialPort
	clock    *timeutil.MockClock
	recorder *fakeRecorder
	session  *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	monitoring.SetLogger(nil)

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	port := serialmux.NewTestableSerialPort()
	reader := controller.NewReader(port, controller.WithClock(clock))
	t.Cleanup(func() { reader.Close() })

	rec := newFakeRecorder()
	s, err := New(Config{Reader: reader, Clock: clock, Recorder: rec})
	require.NoError(t, err)
	return &fixture{port: port, clock: clock, recorder: rec, session: s}
}

func TestNew_RequiresReader(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStep_UpdatesSnapshotAndRecords(t *testing.T) {
	f := newFixture(t)
	_, sub := f.session.Hub().Subscribe()
	f.port.AddLines("L,1,0,1.0,2.0,3.0")

	require.NoError(t, f.session.Step())

	snap := f.session.Snapshot()
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: -3}, snap.State.Rotation)
	assert.True(t, snap.State.LeftButton)
	assert.Equal(t, uint64(1), snap.Stats.Updated)
	assert.False(t, snap.UpdatedAt.IsZero())
	assert.Equal(t, 1, f.recorder.count())

	published := <-sub
	assert.Equal(t, snap, published)
}

func TestStep_NonFatalOutcomesKeepState(t *testing.T) {
	f := newFixture(t)
	f.port.AddLines("L,0,1,4,5,6", "garbage", "L,1,0,--,2,3")
	require.NoError(t, f.session.Step())
	want := f.session.Snapshot().State

	require.NoError(t, f.session.Step()) // unrecognized
	require.NoError(t, f.session.Step()) // malformed
	require.NoError(t, f.session.Step()) // timeout

	snap := f.session.Snapshot()
	assert.Equal(t, want, snap.State)
	assert.Equal(t, controller.Stats{Updated: 1, Unrecognized: 1, Malformed: 1, Timeouts: 1}, snap.Stats)
	assert.Equal(t, 1, f.recorder.count())
}

func TestStep_RecorderErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("disk full")
	f.port.AddLines("L,1,1,0,0,0")

	assert.NoError(t, f.session.Step())
	assert.True(t, f.session.Snapshot().State.RightButton)
}

func TestStep_TransportErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.port.ReadError = errors.New("device unplugged")

	err := f.session.Step()
	assert.ErrorContains(t, err, "device unplugged")
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.port.AddLines("L,1,0,1,2,3")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.recorder.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run never refreshed the reader")
		case <-time.After(time.Millisecond):
			f.clock.Advance(DefaultTickInterval)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_StopsOnTransportError(t *testing.T) {
	f := newFixture(t)
	f.port.ReadError = errors.New("device unplugged")

	done := make(chan error, 1)
	go func() { done <- f.session.Run(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-done:
			assert.ErrorContains(t, err, "device unplugged")
			return
		case <-deadline:
			t.Fatal("Run did not stop on transport error")
		case <-time.After(time.Millisecond):
			f.clock.Advance(DefaultTickInterval)
		}
	}
}
