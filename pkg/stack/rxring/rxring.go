// Package rxring implements the single-reader inbound frame queue between
// the tap device and the dispatcher (spec component C4), grounded on
// PyTCP's subsystems/rx_ring.py: a poll-with-timeout read loop feeding a
// bounded queue that a dequeuing goroutine drains independently.
package rxring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/lambdafunc/usertcpip/pkg/stack"
	"github.com/lambdafunc/usertcpip/pkg/tapio"
)

// state mirrors PyTCP's implicit running flag as an explicit state machine.
type state int32

const (
	stateCreated state = iota
	stateRunning
	stateStopping
	stateStopped
)

// pollTimeout bounds how long Poll blocks before rechecking the running
// state, so Stop can return promptly without the reader blocking forever
// on a tap with no traffic.
const pollTimeout = 100 * time.Millisecond

// Ring is the RX ring: a single goroutine reads frames off a tap device and
// enqueues them; Dequeue is called from the dispatcher goroutine.
type Ring struct {
	tap      tapio.TapDevice
	fd       int // raw fd for unix.Poll; -1 disables poll-gated reads (e.g. in tests)
	capacity int
	mtu      int
	log      *logrus.Entry

	state   atomic.Int32
	frames  chan stack.RxFrame
	stopped chan struct{}

	mu      sync.Mutex
	dropped uint64
}

// New constructs an RX ring reading up to mtu bytes at a time from tap,
// buffering up to capacity frames (RX_RING_CAPACITY).
func New(tap tapio.TapDevice, fd, capacity, mtu int, log *logrus.Entry) *Ring {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ring{
		tap:      tap,
		fd:       fd,
		capacity: capacity,
		mtu:      mtu,
		log:      log.WithField("component", "rx-ring"),
		frames:   make(chan stack.RxFrame, capacity),
		stopped:  make(chan struct{}),
	}
}

// Start launches the reader goroutine. Only the first call on a Ring has
// any effect; later calls return without doing anything.
func (r *Ring) Start() {
	if !r.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return
	}
	r.log.Info("starting RX ring")
	go r.readLoop()
}

// Stop requests the reader goroutine to exit and waits for it to do so.
func (r *Ring) Stop() {
	if !r.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return
	}
	<-r.stopped
	r.state.Store(int32(stateStopped))
	r.log.Info("stopped RX ring")
}

// Dequeue blocks until a frame is available or timeout elapses, returning
// ok=false on timeout so the dispatcher's own loop can check its stop
// condition periodically rather than blocking forever.
func (r *Ring) Dequeue(timeout time.Duration) (stack.RxFrame, bool) {
	select {
	case f := <-r.frames:
		return f, true
	case <-time.After(timeout):
		return stack.RxFrame{}, false
	}
}

// Dropped reports the number of frames dropped because the queue was full.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Ring) readLoop() {
	defer close(r.stopped)
	r.log.Debug("RX ring reader started")

	for state(r.state.Load()) == stateRunning {
		if r.fd >= 0 {
			ready, err := pollReadable(r.fd, pollTimeout)
			if err != nil {
				r.log.WithError(err).Warn("poll failed")
				continue
			}
			if !ready {
				continue
			}
		}

		buf := make([]byte, r.mtu)
		n, err := r.tap.Read(buf)
		if err != nil {
			r.log.WithError(err).Warn("tap read failed")
			continue
		}
		if n == 0 {
			continue
		}

		frame := stack.NewRxFrame(buf[:n])
		r.log.WithField("tracker", frame.Tracker.String()).
			WithField("bytes", n).Debug("received frame")

		select {
		case r.frames <- frame:
		default:
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.log.Warn("RX ring full, dropping frame")
		}
	}

	r.log.Debug("RX ring reader exiting")
}

// pollReadable waits up to timeout for fd to become readable using
// unix.Poll, the Go equivalent of PyTCP's select.select gate around the
// blocking read.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}
