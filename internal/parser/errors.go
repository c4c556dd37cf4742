package parser

import "fmt"

// MalformedEventError reports a record of a known type that lacks a field
// required to use it.
type MalformedEventError struct {
	Type  EventType
	Time  string
	Field string
}

func NewMalformedEventError(ev Event, field string) *MalformedEventError {
	return &MalformedEventError{Type: ev.Kind(), Time: ev.RawTime(), Field: field}
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event at %q: missing or invalid %s", e.Type, e.Time, e.Field)
}
