package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionlink/internal/controller"
)

// ErrUnknownSession is returned when a session id does not exist.
var ErrUnknownSession = errors.New("unknown session")

// Session is one period during which a controller link was open.
type Session struct {
	ID        string     `json:"session_id"`
	PortPath  string     `json:"port_path"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Sample is one committed controller state.
type Sample struct {
	ID         int64            `json:"sample_id"`
	SessionID  string           `json:"session_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	State      controller.State `json:"state"`
}

// StartSession records the start of a controller session and returns its id.
func (db *DB) StartSession(portPath string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO sessions (session_id, port_path, started_at) VALUES (?, ?, ?)`,
		id, portPath, at.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time on a session.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// GetSession returns the session with the given id.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var started int64
	var ended sql.NullInt64
	err := db.QueryRow(`SELECT session_id, port_path, started_at, ended_at FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.PortPath, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}

// RecordSample stores one committed state for a session.
func (db *DB) RecordSample(sessionID string, at time.Time, state controller.State) error {
	_, err := db.Exec(`INSERT INTO samples (session_id, recorded_at, left_button, right_button, rot_x, rot_y, rot_z)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, at.UnixNano(), boolToInt(state.LeftButton), boolToInt(state.RightButton),
		state.Rotation.X, state.Rotation.Y, state.Rotation.Z)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples, newest first.
func (db *DB) RecentSamples(limit int) ([]Sample, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := db.Query(`SELECT sample_id, session_id, recorded_at, left_button, right_button, rot_x, rot_y, rot_z
		FROM samples ORDER BY recorded_at DESC, sample_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var s Sample
		var recorded int64
		var left, right int
		var rot r3.Vec
		if err := rows.Scan(&s.ID, &s.SessionID, &recorded, &left, &right, &rot.X, &rot.Y, &rot.Z); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.RecordedAt = time.Unix(0, recorded).UTC()
		s.State = controller.State{Rotation: rot, LeftButton: left == 1, RightButton: right == 1}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Recorder writes session samples for one open session.
type Recorder struct {
	db        *DB
	sessionID string
}

// NewRecorder starts a session for portPath and returns a Recorder bound to it.
func NewRecorder(db *DB, portPath string, at time.Time) (*Recorder, error) {
	id, err := db.StartSession(portPath, at)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, sessionID: id}, nil
}

// SessionID returns the id of the recorded session.
func (r *Recorder) SessionID() string { return r.sessionID }

// Record stores state as a sample of the session.
func (r *Recorder) Record(at time.Time, state controller.State) error {
	return r.db.RecordSample(r.sessionID, at, state)
}

// Close ends the session.
func (r *Recorder) Close(at time.Time) error {
	return r.db.EndSession(r.sessionID, at)
}
