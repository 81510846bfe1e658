// Package controller reads status frames from a serial motion controller and
// keeps the last good rotation and button state.
package controller

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// State is the controller state carried by one status frame.
type State struct {
	Rotation    r3.Vec `json:"rotation"`
	LeftButton  bool   `json:"left_button"`
	RightButton bool   `json:"right_button"`
}

func (s State) String() string {
	return fmt.Sprintf("rot=(%g, %g, %g) left=%t right=%t",
		s.Rotation.X, s.Rotation.Y, s.Rotation.Z, s.LeftButton, s.RightButton)
}

// Result reports whether a Refresh changed the stored state.
type Result int

const (
	// Unchanged means no frame was committed.
	Unchanged Result = iota
	// Updated means a valid frame replaced the stored state.
	Updated
)

func (r Result) String() string {
	switch r {
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}
