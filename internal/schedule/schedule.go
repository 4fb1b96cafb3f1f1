// Package schedule decides when a frame is eligible for evaluation.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// IntervalGate admits an event only if at least Interval has passed since
// the last admitted one.
type IntervalGate struct {
	Interval time.Duration
}

// Eligible reports whether now is far enough from last.
// A zero last (no sample yet) is always eligible.
func (g IntervalGate) Eligible(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= g.Interval
}

// Random is a precomputed list of strictly increasing sample offsets
// (whole seconds from session start) with a consumption cursor.
type Random struct {
	offsets []int
	cursor  int
}

// NewRandom draws count unique integer offsets from [0, duration) without
// replacement and sorts them.
func NewRandom(rng *rand.Rand, duration, count int) (*Random, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be > 0, got %d", duration)
	}
	if count <= 0 {
		return nil, fmt.Errorf("sample count must be > 0, got %d", count)
	}
	if count > duration {
		return nil, fmt.Errorf("sample count %d exceeds duration %d (offsets are whole seconds)", count, duration)
	}

	// Partial Fisher-Yates: the first count entries of the permutation.
	perm := rng.Perm(duration)
	offsets := append([]int(nil), perm[:count]...)
	sort.Ints(offsets)

	return &Random{offsets: offsets}, nil
}

// Offsets returns a copy of the schedule
func (r *Random) Offsets() []int {
	return append([]int(nil), r.offsets...)
}

// Len returns the number of scheduled samples
func (r *Random) Len() int { return len(r.offsets) }

// Taken returns how many samples have been consumed
func (r *Random) Taken() int { return r.cursor }

// Exhausted reports whether every scheduled sample has been consumed
func (r *Random) Exhausted() bool { return r.cursor >= len(r.offsets) }

// Due reports whether elapsed has reached the next unconsumed offset
func (r *Random) Due(elapsed time.Duration) bool {
	if r.Exhausted() {
		return false
	}
	return elapsed >= time.Duration(r.offsets[r.cursor])*time.Second
}

// Advance consumes the next scheduled sample
func (r *Random) Advance() {
	if !r.Exhausted() {
		r.cursor++
	}
}
