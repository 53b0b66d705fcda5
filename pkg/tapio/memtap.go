package tapio

import (
	"errors"
	"sync"
)

// ErrClosed is returned by MemTap once Close has been called.
var ErrClosed = errors.New("tapio: device closed")

// MemTap is an in-memory TapDevice for exercising the rings/dispatcher
// without a real tun/tap device or root privileges. Frames passed to
// Inject are returned by Read, and frames passed to Write appear on the
// Sent channel, so a test can simulate both a peer and the stack under
// test.
type MemTap struct {
	mu     sync.Mutex
	closed bool
	rx     chan []byte // frames available to Read
	tx     chan []byte // frames handed to Write
}

// NewMemTap creates a MemTap with the given inbound/outbound queue depth.
func NewMemTap(queueDepth int) *MemTap {
	return &MemTap{
		rx: make(chan []byte, queueDepth),
		tx: make(chan []byte, queueDepth),
	}
}

// Inject enqueues a frame as if it had arrived on the wire, to be returned
// by a subsequent Read.
func (m *MemTap) Inject(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.rx <- cp
}

// Sent returns the channel of frames written via Write, for a test to
// assert against.
func (m *MemTap) Sent() <-chan []byte { return m.tx }

// Read implements TapDevice.
func (m *MemTap) Read(buf []byte) (int, error) {
	frame, ok := <-m.rx
	if !ok {
		return 0, ErrClosed
	}
	return copy(buf, frame), nil
}

// Write implements TapDevice.
func (m *MemTap) Write(buf []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	m.mu.Unlock()

	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.tx <- cp
	return len(buf), nil
}

// Close implements TapDevice.
func (m *MemTap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.rx)
	return nil
}
