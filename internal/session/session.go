// Package session drives a controller Reader from a host tick loop and shares
// the latest state with other goroutines.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/motionlink/internal/controller"
	"github.com/banshee-data/motionlink/internal/monitoring"
	"github.com/banshee-data/motionlink/internal/serialmux"
	"github.com/banshee-data/motionlink/internal/timeutil"
)

// DefaultTickInterval is how often Run calls Refresh when not configured.
const DefaultTickInterval = 20 * time.Millisecond

// StateReader is the part of controller.Reader the session needs.
type StateReader interface {
	Refresh() (controller.Result, error)
	State() controller.State
	Stats() controller.Stats
}

// Recorder persists committed states.
type Recorder interface {
	Record(at time.Time, state controller.State) error
}

// Snapshot is the latest committed state and when it was read.
type Snapshot struct {
	State     controller.State `json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
	Stats     controller.Stats `json:"stats"`
	// LineErrors counts overlong lines dropped by the transport.
	LineErrors uint64 `json:"line_errors"`
}

// Config holds the collaborators of a Session.
type Config struct {
	Reader       StateReader
	TickInterval time.Duration
	Clock        timeutil.Clock
	Recorder     Recorder
	Hub          *Hub
}

// Session runs the tick loop. The Reader is only touched from Run.
type Session struct {
	reader   StateReader
	tick     time.Duration
	clock    timeutil.Clock
	recorder Recorder
	hub      *Hub

	mu         sync.RWMutex
	snap       Snapshot
	lineErrors uint64
}

// New creates a Session. Reader is required.
func New(cfg Config) (*Session, error) {
	if cfg.Reader == nil {
		return nil, errors.New("session requires a reader")
	}
	s := &Session{
		reader:   cfg.Reader,
		tick:     cfg.TickInterval,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		hub:      cfg.Hub,
	}
	if s.tick <= 0 {
		s.tick = DefaultTickInterval
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	s.snap.State = cfg.Reader.State()
	return s, nil
}

// Hub returns the hub snapshots are published to.
func (s *Session) Hub() *Hub { return s.hub }

// Snapshot returns the latest snapshot. It is safe for concurrent use.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Run calls Refresh once per tick until ctx is done or the transport fails.
// Timeouts, unrecognized frames and malformed frames do not stop the loop.
func (s *Session) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := s.Step(); err != nil {
				return err
			}
		}
	}
}

// Step performs a single Refresh and applies its outcome. It returns an error
// only when the transport is unusable.
func (s *Session) Step() error {
	res, err := s.reader.Refresh()
	switch {
	case errors.Is(err, controller.ErrTimeout):
		monitoring.Debugf("controller read timed out")
	case errors.Is(err, controller.ErrMalformedField):
		monitoring.Logf("dropped controller frame: %v", err)
	case errors.Is(err, serialmux.ErrLineTooLong):
		monitoring.Logf("dropped controller data: %v", err)
		s.mu.Lock()
		s.lineErrors++
		s.mu.Unlock()
	case err != nil:
		return fmt.Errorf("controller refresh: %w", err)
	}

	snap := s.commit(res)
	if res != controller.Updated {
		return nil
	}

	s.hub.Publish(snap)
	if s.recorder != nil {
		if err := s.recorder.Record(snap.UpdatedAt, snap.State); err != nil {
			monitoring.Logf("failed to record controller state: %v", err)
		}
	}
	return nil
}

func (s *Session) commit(res controller.Result) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stats = s.reader.Stats()
	s.snap.LineErrors = s.lineErrors
	if res == controller.Updated {
		s.snap.State = s.reader.State()
		s.snap.UpdatedAt = s.clock.Now()
	}
	return s.snap
}
