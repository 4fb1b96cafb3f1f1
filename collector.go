package framecollector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/reconnect"
)

// DefaultReconnectAfter is the number of consecutive read failures after
// which the source is released and reopened.
const DefaultReconnectAfter = 10

// Config wires a Collector to its collaborators
type Config struct {
	// Source provides frames (required)
	Source FrameSource
	// Archiver persists accepted frames (required)
	Archiver FrameArchiver
	// Events receives save and summary notifications (optional)
	Events EventSink
	// Logger is the structured logger (nil uses slog.Default())
	Logger *slog.Logger
	// Clock drives timestamps and backoff (nil uses SystemClock)
	Clock Clock

	// ReconnectAfter is the number of consecutive read failures before the
	// source is reopened. 0 retries forever at the policy's fixed delay.
	ReconnectAfter int
	// ReopenMaxRetries bounds reopen attempts (default: 5)
	ReopenMaxRetries int
	// ReopenDelay is the initial reopen backoff (default: 1s)
	ReopenDelay time.Duration
	// ReopenMaxDelay caps the reopen backoff (default: 30s)
	ReopenMaxDelay time.Duration
}

// Collector runs collection sessions against one source
//
// A Collector runs one session at a time; Run is not safe for concurrent use.
type Collector struct {
	source   FrameSource
	archiver FrameArchiver
	events   EventSink
	logger   *slog.Logger
	clock    Clock

	reconnectAfter int
	reopenCfg      reconnect.Config

	mu    sync.RWMutex
	phase Phase
}

// New creates a Collector. It does not touch the source or the output directory.
func New(cfg Config) (*Collector, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("frame-collector: source is required")
	}
	if cfg.Archiver == nil {
		return nil, fmt.Errorf("frame-collector: archiver is required")
	}
	if cfg.ReconnectAfter < 0 {
		return nil, fmt.Errorf("frame-collector: reconnect-after must be >= 0, got %d", cfg.ReconnectAfter)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	reopenCfg := reconnect.DefaultConfig()
	if cfg.ReopenMaxRetries > 0 {
		reopenCfg.MaxRetries = cfg.ReopenMaxRetries
	}
	if cfg.ReopenDelay > 0 {
		reopenCfg.RetryDelay = cfg.ReopenDelay
	}
	if cfg.ReopenMaxDelay > 0 {
		reopenCfg.MaxRetryDelay = cfg.ReopenMaxDelay
	}
	reopenCfg.Wait = clock.Sleep
	reopenCfg.Logger = logger

	return &Collector{
		source:         cfg.Source,
		archiver:       cfg.Archiver,
		events:         cfg.Events,
		logger:         logger,
		clock:          clock,
		reconnectAfter: cfg.ReconnectAfter,
		reopenCfg:      reopenCfg,
		phase:          PhaseIdle,
	}, nil
}

// Phase returns the current session phase
func (c *Collector) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Collector) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Collect runs a continuous, change-triggered session until the duration or
// frame cap is reached, or ctx is cancelled.
func (c *Collector) Collect(ctx context.Context, opts ContinuousOptions) (*Summary, error) {
	policy, err := NewContinuousPolicy(opts)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, policy)
}

// CollectRandomSamples runs a random-offset session and returns the saved
// records in capture order.
func (c *Collector) CollectRandomSamples(ctx context.Context, opts RandomOptions) ([]SavedFrameRecord, *Summary, error) {
	policy, err := NewRandomPolicy(opts)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info("frame-collector: random schedule prepared",
		"offsets", policy.Offsets(),
		"duration", opts.Duration,
	)

	sum, err := c.Run(ctx, policy)
	if sum == nil {
		return nil, nil, err
	}
	return sum.Records, sum, err
}

// Run executes one session under policy
//
// Lifecycle: Idle → Opening → Running → Draining → Closed. The source is
// released exactly once per successful open, on every exit path. Operator
// cancellation (ctx done) ends the session gracefully with a nil error.
//
// Fatal errors (the returned error is non-nil):
//   - the source cannot be opened (wraps ErrStreamOpen; no frame is read)
//   - the output directory cannot be created (wraps ErrOutputUnavailable)
//   - reopening after repeated read failures is exhausted (wraps ErrSourceUnavailable)
//   - the source reports a read error that is neither ErrReadFailed nor
//     ErrEndOfStream (wraps ErrSourceUnavailable and the source error)
func (c *Collector) Run(ctx context.Context, policy Policy) (sum *Summary, err error) {
	st := &SessionState{SessionID: uuid.NewString()}
	sum = &Summary{SessionID: st.SessionID, Policy: policy.Name()}
	log := c.logger.With("session_id", st.SessionID, "policy", policy.Name())

	c.setPhase(PhaseOpening)
	log.Info("frame-collector: opening source", "source", c.source.Describe())

	if err := c.source.Open(ctx); err != nil {
		c.setPhase(PhaseClosed)
		sum.StopReason = StopOpenFailed
		log.Error("frame-collector: failed to open source",
			"source", c.source.Describe(),
			"error", err,
		)
		if !errors.Is(err, ErrStreamOpen) {
			err = fmt.Errorf("%w: %v", ErrStreamOpen, err)
		}
		return sum, err
	}

	st.StartedAt = c.clock.Now()
	held := true

	defer func() {
		c.setPhase(PhaseDraining)
		if held {
			if relErr := c.source.Release(); relErr != nil {
				log.Warn("frame-collector: failed to release source", "error", relErr)
			}
		}

		sum.FramesRead = st.FramesRead
		sum.FramesSaved = st.FramesSaved
		sum.Duration = c.clock.Now().Sub(st.StartedAt)
		c.setPhase(PhaseClosed)

		log.Info("frame-collector: session completed",
			"stop_reason", sum.StopReason.String(),
			"frames_read", sum.FramesRead,
			"frames_saved", sum.FramesSaved,
			"save_failures", sum.SaveFailures,
			"read_failures", sum.ReadFailures,
			"reopens", sum.Reopens,
			"duration", sum.Duration,
		)

		if c.events != nil {
			// The session context may already be cancelled; the summary still goes out.
			if evErr := c.events.SessionCompleted(context.WithoutCancel(ctx), *sum); evErr != nil {
				log.Warn("frame-collector: failed to publish session summary", "error", evErr)
			}
		}
	}()

	c.setPhase(PhaseRunning)
	log.Info("frame-collector: session started",
		"source", c.source.Describe(),
		"retry_delay", policy.RetryDelay(),
	)

	consecutiveFailures := 0
	for {
		if ctx.Err() != nil {
			sum.StopReason = StopCancelled
			log.Info("frame-collector: collection interrupted")
			return sum, nil
		}
		if done, reason := policy.Done(st, c.clock.Now()); done {
			sum.StopReason = reason
			return sum, nil
		}

		frame, readErr := c.source.Read(ctx)
		if readErr != nil {
			if ctx.Err() != nil {
				sum.StopReason = StopCancelled
				log.Info("frame-collector: collection interrupted")
				return sum, nil
			}

			if !IsTransient(readErr) {
				sum.StopReason = StopError
				log.Error("frame-collector: unrecoverable read error", "error", readErr)
				return sum, fmt.Errorf("%w: %w", ErrSourceUnavailable, readErr)
			}

			sum.ReadFailures++
			consecutiveFailures++

			if c.reconnectAfter > 0 && consecutiveFailures >= c.reconnectAfter {
				log.Warn("frame-collector: repeated read failures, reopening source",
					"error", readErr,
					"consecutive_failures", consecutiveFailures,
				)
				if err := c.reopen(ctx, &held, sum); err != nil {
					if ctx.Err() != nil {
						sum.StopReason = StopCancelled
						log.Info("frame-collector: collection interrupted")
						return sum, nil
					}
					sum.StopReason = StopError
					return sum, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
				}
				consecutiveFailures = 0
				continue
			}

			log.Warn("frame-collector: failed to read frame, retrying",
				"error", readErr,
				"consecutive_failures", consecutiveFailures,
				"retry_in", policy.RetryDelay(),
			)
			if err := c.clock.Sleep(ctx, policy.RetryDelay()); err != nil {
				sum.StopReason = StopCancelled
				log.Info("frame-collector: collection interrupted")
				return sum, nil
			}
			continue
		}

		consecutiveFailures = 0
		st.FramesRead++
		now := c.clock.Now()

		decision := policy.Evaluate(&frame, st, now)
		if !decision.Accept {
			log.Debug("frame-collector: frame skipped",
				"frame_seq", frame.Seq,
				"reason", decision.Reason,
				"difference", decision.Difference,
			)
			continue
		}

		rec, saveErr := c.archiver.Save(&frame, now, st.FramesSaved+1)
		if saveErr != nil {
			if errors.Is(saveErr, ErrOutputUnavailable) {
				sum.StopReason = StopError
				log.Error("frame-collector: output directory unavailable", "error", saveErr)
				return sum, saveErr
			}
			sum.SaveFailures++
			log.Error("frame-collector: failed to save frame, skipping",
				"frame_seq", frame.Seq,
				"error", saveErr,
			)
			continue
		}

		st.accept(&frame, now)
		policy.Commit(st, now)

		rec.SessionID = st.SessionID
		rec.Difference = decision.Difference
		rec.Fingerprint = Fingerprint(&frame)
		if policy.RetainRecords() {
			sum.Records = append(sum.Records, rec)
		}

		log.Info("frame-collector: frame saved",
			"path", rec.Path,
			"frames_saved", st.FramesSaved,
			"reason", decision.Reason,
			"difference", decision.Difference,
		)

		if c.events != nil {
			if evErr := c.events.FrameSaved(ctx, rec); evErr != nil {
				log.Warn("frame-collector: failed to publish frame event", "error", evErr)
			}
		}
	}
}

// reopen releases the source and opens it again with exponential backoff.
// On failure the handle stays released.
func (c *Collector) reopen(ctx context.Context, held *bool, sum *Summary) error {
	if err := c.source.Release(); err != nil {
		c.logger.Warn("frame-collector: failed to release source before reopen", "error", err)
	}
	*held = false

	state := &reconnect.State{}
	err := reconnect.Run(ctx, func(ctx context.Context) error {
		return c.source.Open(ctx)
	}, c.reopenCfg, state)
	if err != nil {
		return err
	}

	*held = true
	sum.Reopens++
	return nil
}
