package xarm

import (
	"io"
	"time"
)

// Transport is the interface for low-level communication with the
// controller board. This abstraction allows for testing with mock
// implementations.
//
// Read must honor the configured read timeout and return (0, nil)
// when it elapses with no data.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}
