package status

import (
	"sync/atomic"
	"time"
)

// Phase is a coarse step of the process lifecycle.
type Phase string

const (
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseConnecting    Phase = "connecting"
	PhaseConnected     Phase = "connected"
	PhaseDraining      Phase = "draining"
	PhaseStopped       Phase = "stopped"
)

// Tracker records the current Phase. Safe for concurrent use.
type Tracker struct {
	phase   atomic.Pointer[Phase]
	since   atomic.Int64
	started time.Time
}

// NewTracker creates a Tracker in PhaseBootstrapping.
func NewTracker() *Tracker {
	t := &Tracker{started: time.Now()}
	t.Set(PhaseBootstrapping)
	return t
}

// Set moves the tracker to p.
func (t *Tracker) Set(p Phase) {
	t.phase.Store(&p)
	t.since.Store(time.Now().UnixNano())
}

// Advance moves the tracker from one phase to the next only if it is still in
// from, and reports whether it did. Late events cannot rewind a later phase.
func (t *Tracker) Advance(from, to Phase) bool {
	for {
		current := t.phase.Load()
		if *current != from {
			return false
		}
		if t.phase.CompareAndSwap(current, &to) {
			t.since.Store(time.Now().UnixNano())
			return true
		}
	}
}

// Snapshot returns the current phase and when it was entered.
func (t *Tracker) Snapshot() (Phase, time.Time) {
	return *t.phase.Load(), time.Unix(0, t.since.Load())
}
