package web

import "fmt"

// TransportError is a read or write failure on a session's connection. It
// ends that session only.
type TransportError struct {
	Op     string // "read" or "write"
	Remote string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
