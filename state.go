package framecollector

import (
	"fmt"
	"time"
)

// Phase is the Collector's position in its session state machine
//
//	Idle → Opening → Running → Draining → Closed
//
// Opening may jump straight to Closed when the source cannot be opened.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOpening
	PhaseRunning
	PhaseDraining
	PhaseClosed
)

// String returns a human-readable string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOpening:
		return "opening"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SessionState is the mutable bookkeeping of one collection session
//
// It is owned by the Collector's loop; policies read it and never write it.
// Invariants: FramesSaved <= FramesRead, LastSampleTime never decreases.
type SessionState struct {
	SessionID string
	StartedAt time.Time

	FramesRead     uint64
	FramesSaved    uint64
	LastSampleTime time.Time

	// Baseline is the last accepted frame, held as an owned copy.
	Baseline *Frame
}

// Elapsed returns the time since the session started
func (s *SessionState) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// accept records a confirmed save: replaces the baseline and advances the
// sample clock and counter.
func (s *SessionState) accept(f *Frame, now time.Time) {
	s.Baseline = f.Clone()
	if now.After(s.LastSampleTime) {
		s.LastSampleTime = now
	}
	s.FramesSaved++
}
