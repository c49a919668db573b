package shr

import "fmt"

// State reports how a marker was found in the telegram.
type State int

const (
	// Absent means the marker does not occur.
	Absent State = iota
	// Present means the marker occurred and its value decoded.
	Present
	// Malformed means the marker occurred but its value did not decode.
	Malformed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Field is a typed optional extraction result.
type Field[T any] struct {
	Value T
	State State
	Raw   string // matched text, empty when absent
	Err   error  // decode error, set when malformed
}

// Ok reports whether the field was present and decoded.
func (f Field[T]) Ok() bool { return f.State == Present }

// Or returns the value when present, otherwise def.
func (f Field[T]) Or(def T) T {
	if f.State == Present {
		return f.Value
	}
	return def
}

// Ptr returns a pointer to the value when present, otherwise nil.
func (f Field[T]) Ptr() *T {
	if f.State != Present {
		return nil
	}
	v := f.Value
	return &v
}

func present[T any](v T, raw string) Field[T] {
	return Field[T]{Value: v, State: Present, Raw: raw}
}

func malformed[T any](raw string, err error) Field[T] {
	return Field[T]{State: Malformed, Raw: raw, Err: err}
}
