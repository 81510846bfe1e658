package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sentinel is the first byte of every status frame.
const Sentinel = 'L'

// FieldCount is the number of data fields after the sentinel.
const FieldCount = 5

const (
	fieldLeft = iota
	fieldRight
	fieldAxisY
	fieldAxisX
	fieldAxisZ
)

var fieldNames = [FieldCount]string{"left", "right", "axis_y", "axis_x", "axis_z"}

var (
	// ErrUnrecognizedFrame marks a line that does not start with the sentinel.
	// Refresh ignores such lines; ParseFrame reports them.
	ErrUnrecognizedFrame = errors.New("line is not a status frame")
	// ErrMalformedField marks a frame rejected because a field did not parse.
	ErrMalformedField = errors.New("malformed frame field")
)

// FieldError describes the field that caused a frame to be rejected.
type FieldError struct {
	Index int    // position after the sentinel, 0 based
	Raw   string // field as received, empty when missing
	Err   error  // underlying parse error, if any
}

func (e *FieldError) Error() string {
	name := "field"
	if e.Index >= 0 && e.Index < FieldCount {
		name = fieldNames[e.Index]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %d (%s) %q: %v", ErrMalformedField, e.Index, name, e.Raw, e.Err)
	}
	return fmt.Sprintf("%s %d (%s) %q", ErrMalformedField, e.Index, name, e.Raw)
}

func (e *FieldError) Is(target error) bool { return target == ErrMalformedField }

func (e *FieldError) Unwrap() error { return e.Err }

var (
	errMissingField = errors.New("missing")
	errNotABoolean  = errors.New("button value must be 0 or 1")
)

// ParseFrame decodes one status line. Both "L,1,0,a,b,c" and "L1,0,a,b,c" are
// accepted. Fields after the fifth are ignored. The wire axes are remapped:
// X takes the fourth field, Y the third, and Z the negated fifth.
func ParseFrame(line string) (State, error) {
	if len(line) == 0 || line[0] != Sentinel {
		return State{}, ErrUnrecognizedFrame
	}
	body := strings.TrimPrefix(line[1:], ",")
	raw := strings.Split(body, ",")

	var values [FieldCount]float64
	for i := range values {
		if i >= len(raw) {
			return State{}, &FieldError{Index: i, Err: errMissingField}
		}
		v, err := ParseField(raw[i])
		if err != nil {
			return State{}, &FieldError{Index: i, Raw: raw[i], Err: err}
		}
		values[i] = v
	}

	left, err := button(values[fieldLeft])
	if err != nil {
		return State{}, &FieldError{Index: fieldLeft, Raw: raw[fieldLeft], Err: err}
	}
	right, err := button(values[fieldRight])
	if err != nil {
		return State{}, &FieldError{Index: fieldRight, Raw: raw[fieldRight], Err: err}
	}

	return State{
		Rotation: r3.Vec{
			X: values[fieldAxisX],
			Y: values[fieldAxisY],
			Z: -values[fieldAxisZ],
		},
		LeftButton:  left,
		RightButton: right,
	}, nil
}

// ParseField strips every byte that is not an ASCII digit, '.' or '-' and
// parses the remainder as a float.
func ParseField(field string) (float64, error) {
	cleaned := CleanField(field)
	if cleaned == "" {
		return 0, errors.New("no numeric characters")
	}
	return strconv.ParseFloat(cleaned, 64)
}

// CleanField keeps only ASCII digits, '.' and '-'.
func CleanField(field string) string {
	var b strings.Builder
	b.Grow(len(field))
	for i := 0; i < len(field); i++ {
		c := field[i]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func button(v float64) (bool, error) {
	switch v {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, errNotABoolean
	}
}
