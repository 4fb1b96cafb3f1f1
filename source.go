package framecollector

import (
	"context"
	"errors"
)

var (
	// ErrStreamOpen is returned when the source cannot be opened at all.
	// It aborts the session before any frame is processed.
	ErrStreamOpen = errors.New("frame-collector: stream open failed")

	// ErrReadFailed signals a transient read failure (no sample within the
	// read timeout, pipeline error). The Collector backs off and retries.
	ErrReadFailed = errors.New("frame-collector: frame read failed")

	// ErrEndOfStream signals that the source reported end of data.
	// The Collector treats it like ErrReadFailed.
	ErrEndOfStream = errors.New("frame-collector: end of stream")

	// ErrSourceUnavailable is returned when repeated reopen attempts after
	// consecutive read failures are exhausted, or when Read fails with a
	// non-transient error.
	ErrSourceUnavailable = errors.New("frame-collector: source unavailable")

	// ErrOutputUnavailable is returned when the output root cannot be created.
	ErrOutputUnavailable = errors.New("frame-collector: output directory unavailable")
)

// FrameSource defines the contract for synchronous frame acquisition
//
// Implementations must guarantee:
//   - Open() fails with an error wrapping ErrStreamOpen if the source is unreachable
//   - Read() blocks until a frame is available, the read times out, or ctx is done
//   - Read() wraps ErrReadFailed or ErrEndOfStream for transient conditions;
//     any other error ends the session
//   - Release() is idempotent (safe to call multiple times, and before Open)
//   - Open() may be called again after Release() (reopen)
type FrameSource interface {
	// Open acquires the stream handle.
	Open(ctx context.Context) error

	// Read returns the next frame in capture order.
	Read(ctx context.Context) (Frame, error)

	// Release frees the stream handle.
	Release() error

	// Describe returns the source address for logging.
	Describe() string
}

// IsTransient reports whether err is a read condition the Collector retries
func IsTransient(err error) bool {
	return errors.Is(err, ErrReadFailed) || errors.Is(err, ErrEndOfStream)
}
