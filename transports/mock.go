// Package transports provides Transport implementations for the xArm
// controller board: serial, USB HID, and a mock for tests.
package transports

import (
	"io"
	"time"
)

// MockTransport implements the controller Transport for testing.
// Scripted reply frames are returned one per Read call, matching how
// the board answers exactly one frame per request.
type MockTransport struct {
	Frames      [][]byte // scripted replies, popped one per Read
	ReadData    []byte   // raw bytes served after Frames are drained
	ReadErr     error
	WriteData   []byte   // every written byte, concatenated
	Writes      [][]byte // each Write call separately, in order
	WriteErr    error
	Closed      bool
	ReadTimeout time.Duration
	Flushes     int

	// ReadFunc overrides all read behavior for complex tests.
	ReadFunc func(p []byte) (int, error)
}

// Queue appends a reply frame to the script.
func (m *MockTransport) Queue(frame []byte) {
	m.Frames = append(m.Frames, frame)
}

func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if len(m.Frames) > 0 {
		n := copy(p, m.Frames[0])
		m.Frames = m.Frames[1:]
		return n, nil
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, p...)
	written := make([]byte, len(p))
	copy(written, p)
	m.Writes = append(m.Writes, written)
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.Closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

func (m *MockTransport) Flush() error {
	m.Flushes++
	// Don't clear queued data - tests need their scripted replies.
	return nil
}
