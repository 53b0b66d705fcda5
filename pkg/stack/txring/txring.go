// Package txring implements the single-writer outbound frame queue
// symmetric to pkg/stack/rxring (spec component C5): a bounded queue with
// one draining goroutine writing to the tap. A partial write is reported
// on an error channel but does not stop the writer, matching spec.md
// §4.5's "TX ring" requirement that a single bad frame can't wedge the
// writer.
package txring

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/lambdafunc/usertcpip/pkg/stack"
	"github.com/lambdafunc/usertcpip/pkg/tapio"
)

type state int32

const (
	stateCreated state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Ring is the TX ring.
type Ring struct {
	tap      tapio.TapDevice
	capacity int
	log      *logrus.Entry

	state   atomic.Int32
	frames  chan stack.TxFrame
	errs    chan error
	stopped chan struct{}
}

// New constructs a TX ring writing to tap, buffering up to capacity
// frames (TX_RING_CAPACITY).
func New(tap tapio.TapDevice, capacity int, log *logrus.Entry) *Ring {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ring{
		tap:      tap,
		capacity: capacity,
		log:      log.WithField("component", "tx-ring"),
		frames:   make(chan stack.TxFrame, capacity),
		errs:     make(chan error, capacity),
		stopped:  make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (r *Ring) Start() {
	if !r.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return
	}
	r.log.Info("starting TX ring")
	go r.writeLoop()
}

// Stop drains any already-queued frames, then requests the writer
// goroutine to exit and waits for it to do so.
func (r *Ring) Stop() {
	if !r.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return
	}
	close(r.frames)
	<-r.stopped
	r.state.Store(int32(stateStopped))
	r.log.Info("stopped TX ring")
}

// Enqueue submits a frame for transmission. It returns false if the ring is
// full, in which case the caller should treat the frame as dropped (the
// dispatcher's TxOutcome taxonomy has no "TX ring full" member because the
// ring is sized to absorb normal bursts; a full ring under correct sizing
// indicates a stuck writer, logged here instead).
func (r *Ring) Enqueue(f stack.TxFrame) bool {
	select {
	case r.frames <- f:
		return true
	default:
		r.log.Warn("TX ring full, dropping frame")
		return false
	}
}

// Errors returns the channel partial/failed writes are reported on.
func (r *Ring) Errors() <-chan error { return r.errs }

func (r *Ring) writeLoop() {
	defer close(r.stopped)
	r.log.Debug("TX ring writer started")

	for f := range r.frames {
		n, err := r.tap.Write(f.Raw)
		if err != nil {
			r.reportError(fmt.Errorf("tracker %s: write failed: %w", f.Tracker, err))
			continue
		}
		if n != len(f.Raw) {
			r.reportError(fmt.Errorf("tracker %s: partial write %d/%d bytes", f.Tracker, n, len(f.Raw)))
			continue
		}
		r.log.WithField("tracker", f.Tracker.String()).
			WithField("bytes", n).Debug("transmitted frame")
	}

	r.log.Debug("TX ring writer exiting")
}

func (r *Ring) reportError(err error) {
	r.log.WithError(err).Warn("TX write problem")
	select {
	case r.errs <- err:
	default:
	}
}
