package xarm

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout  = errors.New("response timeout")
	ErrClosed   = errors.New("controller is closed")
	ErrNoServos = errors.New("no servos detected on the bus")
)

// ArgumentError reports an invalid servo ID, position, angle or
// duration. It is always raised before any transport I/O.
type ArgumentError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Param, e.Value, e.Reason)
}

// FrameError reports a response that failed preamble, length or
// command validation. It indicates a corrupted or unsynchronized
// channel and is never retried.
type FrameError struct {
	Reason string
	Data   []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("invalid frame (% X): %s", e.Data, e.Reason)
}

// TruncatedPayloadError reports a response whose declared entry count
// exceeds the bytes actually present. No partial result is returned.
type TruncatedPayloadError struct {
	Declared  int
	Available int
}

func (e *TruncatedPayloadError) Error() string {
	return fmt.Sprintf("truncated payload: %d entries declared, %d available", e.Declared, e.Available)
}

// SafetyError reports a refused broadcast ID write: more than one
// servo answered the presence probe and the caller did not pass the
// explicit override.
type SafetyError struct {
	Detected []int // servo IDs that answered
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("refusing broadcast ID write: %d servos detected %v; "+
		"pass overwriteAll to renumber the whole chain", len(e.Detected), e.Detected)
}

// TransportError wraps a failure of the underlying channel. It is
// fatal to the in-flight operation and never swallowed.
type TransportError struct {
	Op  string // "write", "read", "flush"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a response timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsFrame returns true if the error is a framing failure.
func IsFrame(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
