package framecollector

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/schedule"
)

const (
	// DefaultInterval is the minimum time between accepted samples in continuous mode
	DefaultInterval = 1 * time.Second
	// DefaultThreshold is the minimum change score to accept a frame
	DefaultThreshold = 0.05
	// DefaultContinuousRetryDelay is the backoff after a failed read in continuous mode
	DefaultContinuousRetryDelay = 1 * time.Second
	// DefaultRandomRetryDelay is the backoff after a failed read in random mode
	DefaultRandomRetryDelay = 100 * time.Millisecond
)

// Decision is the outcome of evaluating one frame
type Decision struct {
	Accept bool
	// Reason is a short machine-friendly tag for logs
	// ("rate_limited", "below_threshold", "changed", "scheduled", "not_due").
	Reason string
	// Difference is the change score, when it was computed
	Difference float64
}

// Policy decides which frames a session keeps and when it ends
//
// The Collector calls, per frame: Evaluate; on a confirmed save, Commit.
// Done is checked before every read. Policies read SessionState and keep
// their own private cursor state; they never write SessionState.
type Policy interface {
	// Name identifies the policy in logs and summaries.
	Name() string
	// Evaluate decides whether f is accepted at time now.
	Evaluate(f *Frame, st *SessionState, now time.Time) Decision
	// Commit is called after an accepted frame was archived.
	Commit(st *SessionState, now time.Time)
	// Done reports whether the session should stop, and why.
	Done(st *SessionState, now time.Time) (bool, StopReason)
	// RetryDelay is the fixed backoff after a transient read failure.
	RetryDelay() time.Duration
	// RetainRecords reports whether saved records are accumulated in the Summary.
	RetainRecords() bool
}

// ContinuousOptions configures change-triggered collection
type ContinuousOptions struct {
	// Interval is the minimum time between accepted samples (0 disables the gate)
	Interval time.Duration
	// Threshold is the minimum normalized change to accept a frame, in [0, 1]
	Threshold float64
	// Duration caps the session wall-clock time (0 = no cap)
	Duration time.Duration
	// MaxFrames caps the number of saved frames (0 = no cap)
	MaxFrames uint64
	// ReadRetryDelay overrides DefaultContinuousRetryDelay when > 0
	ReadRetryDelay time.Duration
}

// DefaultContinuousOptions returns the collector defaults (1s interval, 0.05 threshold, no caps)
func DefaultContinuousOptions() ContinuousOptions {
	return ContinuousOptions{
		Interval:  DefaultInterval,
		Threshold: DefaultThreshold,
	}
}

// ContinuousPolicy accepts frames that pass the interval gate and differ
// enough from the baseline.
type ContinuousPolicy struct {
	opts ContinuousOptions
	gate schedule.IntervalGate
}

// NewContinuousPolicy validates opts and builds the policy
func NewContinuousPolicy(opts ContinuousOptions) (*ContinuousPolicy, error) {
	if opts.Interval < 0 {
		return nil, fmt.Errorf("frame-collector: interval must be >= 0, got %s", opts.Interval)
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("frame-collector: threshold must be within [0, 1], got %.3f", opts.Threshold)
	}
	if opts.Duration < 0 {
		return nil, fmt.Errorf("frame-collector: duration must be >= 0, got %s", opts.Duration)
	}
	if opts.ReadRetryDelay <= 0 {
		opts.ReadRetryDelay = DefaultContinuousRetryDelay
	}
	return &ContinuousPolicy{
		opts: opts,
		gate: schedule.IntervalGate{Interval: opts.Interval},
	}, nil
}

// Name returns "continuous"
func (p *ContinuousPolicy) Name() string { return "continuous" }

// Evaluate applies the interval gate, then change detection against the baseline.
// Rate-limited frames never reach change detection.
func (p *ContinuousPolicy) Evaluate(f *Frame, st *SessionState, now time.Time) Decision {
	if !p.gate.Eligible(st.LastSampleTime, now) {
		return Decision{Reason: "rate_limited"}
	}

	diff := Difference(f, st.Baseline)
	if diff < p.opts.Threshold {
		return Decision{Reason: "below_threshold", Difference: diff}
	}
	return Decision{Accept: true, Reason: "changed", Difference: diff}
}

// Commit is a no-op: the baseline and sample clock live in SessionState.
func (p *ContinuousPolicy) Commit(st *SessionState, now time.Time) {}

// Done stops on the duration cap or the saved-frame cap, whichever comes first
func (p *ContinuousPolicy) Done(st *SessionState, now time.Time) (bool, StopReason) {
	if p.opts.Duration > 0 && st.Elapsed(now) >= p.opts.Duration {
		return true, StopDuration
	}
	if p.opts.MaxFrames > 0 && st.FramesSaved >= p.opts.MaxFrames {
		return true, StopMaxFrames
	}
	return false, StopNone
}

// RetryDelay returns the read backoff
func (p *ContinuousPolicy) RetryDelay() time.Duration { return p.opts.ReadRetryDelay }

// RetainRecords returns false: continuous sessions only log saves
func (p *ContinuousPolicy) RetainRecords() bool { return false }

// RandomOptions configures fixed-count random collection
type RandomOptions struct {
	// Duration is the session length; offsets are drawn from its whole seconds
	Duration time.Duration
	// Samples is the number of frames to collect (<= whole seconds of Duration)
	Samples int
	// Rand is the source of randomness (nil seeds from the current time)
	Rand *rand.Rand
	// ReadRetryDelay overrides DefaultRandomRetryDelay when > 0
	ReadRetryDelay time.Duration
}

// RandomPolicy accepts, unconditionally, the first frame at or after each
// precomputed random offset.
type RandomPolicy struct {
	duration   time.Duration
	sched      *schedule.Random
	retryDelay time.Duration
}

// NewRandomPolicy validates opts and precomputes the schedule
func NewRandomPolicy(opts RandomOptions) (*RandomPolicy, error) {
	if opts.Duration <= 0 || opts.Samples <= 0 {
		return nil, fmt.Errorf("frame-collector: random mode requires duration > 0 and samples > 0 (got %s, %d)",
			opts.Duration, opts.Samples)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	sched, err := schedule.NewRandom(rng, int(opts.Duration/time.Second), opts.Samples)
	if err != nil {
		return nil, fmt.Errorf("frame-collector: %w", err)
	}

	retry := opts.ReadRetryDelay
	if retry <= 0 {
		retry = DefaultRandomRetryDelay
	}

	return &RandomPolicy{duration: opts.Duration, sched: sched, retryDelay: retry}, nil
}

// Name returns "random"
func (p *RandomPolicy) Name() string { return "random" }

// Offsets returns the precomputed schedule in whole seconds
func (p *RandomPolicy) Offsets() []int { return p.sched.Offsets() }

// Evaluate accepts when the elapsed session time reached the next offset
func (p *RandomPolicy) Evaluate(f *Frame, st *SessionState, now time.Time) Decision {
	if p.sched.Due(st.Elapsed(now)) {
		return Decision{Accept: true, Reason: "scheduled"}
	}
	return Decision{Reason: "not_due"}
}

// Commit advances the schedule cursor
func (p *RandomPolicy) Commit(st *SessionState, now time.Time) { p.sched.Advance() }

// Done stops when every sample was taken or the duration elapsed
func (p *RandomPolicy) Done(st *SessionState, now time.Time) (bool, StopReason) {
	if p.sched.Exhausted() {
		return true, StopScheduleExhausted
	}
	if st.Elapsed(now) >= p.duration {
		return true, StopDuration
	}
	return false, StopNone
}

// RetryDelay returns the read backoff
func (p *RandomPolicy) RetryDelay() time.Duration { return p.retryDelay }

// RetainRecords returns true: random sessions return their saved records
func (p *RandomPolicy) RetainRecords() bool { return true }
