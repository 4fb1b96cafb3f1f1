package framecollector

import (
	"fmt"
	"image"
	"time"
)

// Frame represents a single decoded video frame with metadata
//
// A Frame is immutable once produced by a FrameSource: Data is copied out of
// the GStreamer buffer and must not be modified afterwards.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was pulled from the pipeline
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains interleaved RGB bytes (Width × Height × 3)
	Data []byte
	// SourceStream identifies the stream (e.g., "kitchen-cam-1")
	SourceStream string
	// TraceID is a unique identifier for distributed tracing
	TraceID string
}

// Validate checks that Data matches the declared dimensions
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3; len(f.Data) != want {
		return fmt.Errorf("invalid RGB data size: got %d, expected %d", len(f.Data), want)
	}
	return nil
}

// Image converts the raw RGB bytes to an *image.RGBA (alpha = 255)
func (f *Frame) Image() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.Data[i*3+0] // R
		img.Pix[i*4+1] = f.Data[i*3+1] // G
		img.Pix[i*4+2] = f.Data[i*3+2] // B
		img.Pix[i*4+3] = 255           // A (opaque)
	}
	return img, nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// SavedFrameRecord describes a frame that was successfully archived
type SavedFrameRecord struct {
	// Path is the resolved file path of the written JPEG
	Path string
	// CaptureTime is the wall-clock time the frame was accepted
	CaptureTime time.Time
	// Sequence is the session-scoped save counter (1-based)
	Sequence uint64
	// FrameSeq is the source sequence number of the archived frame
	FrameSeq uint64
	// Difference is the change score that admitted the frame (0 in random mode, where it is not computed)
	Difference float64
	// Fingerprint is a coarse content hash for downstream de-duplication
	Fingerprint string
	// SessionID identifies the collection session
	SessionID string
}

// StopReason explains why a session left the Running phase
type StopReason int

const (
	// StopNone means the session has not stopped yet
	StopNone StopReason = iota
	// StopDuration means the configured duration elapsed
	StopDuration
	// StopMaxFrames means the accepted-frame cap was reached
	StopMaxFrames
	// StopScheduleExhausted means every random sample was taken
	StopScheduleExhausted
	// StopCancelled means the operator interrupted the session
	StopCancelled
	// StopOpenFailed means the source could not be opened
	StopOpenFailed
	// StopError means a fatal error ended the session
	StopError
)

// String returns a human-readable string representation of the stop reason
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopDuration:
		return "duration"
	case StopMaxFrames:
		return "max_frames"
	case StopScheduleExhausted:
		return "schedule_exhausted"
	case StopCancelled:
		return "cancelled"
	case StopOpenFailed:
		return "open_failed"
	case StopError:
		return "error"
	default:
		return "unknown"
	}
}

// Summary is the final report of a collection session
type Summary struct {
	// SessionID identifies the collection session
	SessionID string
	// Policy is the name of the sampling policy used
	Policy string
	// FramesRead is the total number of frames read from the source
	FramesRead uint64
	// FramesSaved is the total number of frames archived
	FramesSaved uint64
	// SaveFailures counts frames that were accepted but could not be written
	SaveFailures uint64
	// ReadFailures counts transient read failures (including end of stream)
	ReadFailures uint64
	// Reopens counts how many times the source was reopened after repeated failures
	Reopens uint32
	// Records holds every saved frame (random mode only)
	Records []SavedFrameRecord
	// Duration is the wall-clock length of the session
	Duration time.Duration
	// StopReason explains why the session ended
	StopReason StopReason
}

// Resolution represents supported capture resolutions
type Resolution int

const (
	// ResNative keeps the source resolution (no videoscale caps)
	ResNative Resolution = iota
	// Res512p represents 910x512 resolution
	Res512p
	// Res720p represents 1280x720 resolution (HD)
	Res720p
	// Res1080p represents 1920x1080 resolution (Full HD)
	Res1080p
)

// Dimensions returns the width and height for the resolution.
// ResNative returns 0, 0.
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res512p:
		return 910, 512
	case Res720p:
		return 1280, 720
	case Res1080p:
		return 1920, 1080
	default:
		return 0, 0
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case Res512p:
		return "512p"
	case Res720p:
		return "720p"
	case Res1080p:
		return "1080p"
	default:
		return "native"
	}
}

// ParseResolution maps "native", "512p", "720p" or "1080p" to a Resolution
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "", "native":
		return ResNative, nil
	case "512p":
		return Res512p, nil
	case "720p":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	default:
		return ResNative, fmt.Errorf("invalid resolution %q (must be native, 512p, 720p, or 1080p)", s)
	}
}

// HardwareAccel selects the decoder chain of the GStreamer pipeline
type HardwareAccel int

const (
	// AccelAuto attempts VAAPI decode and falls back to software
	AccelAuto HardwareAccel = iota
	// AccelVAAPI forces VAAPI and fails fast if unavailable
	AccelVAAPI
	// AccelSoftware forces CPU decode
	AccelSoftware
)

// String returns a human-readable string representation of the acceleration mode
func (a HardwareAccel) String() string {
	switch a {
	case AccelVAAPI:
		return "vaapi"
	case AccelSoftware:
		return "software"
	default:
		return "auto"
	}
}

// ParseHardwareAccel maps "auto", "vaapi" or "software" to a HardwareAccel
func ParseHardwareAccel(s string) (HardwareAccel, error) {
	switch s {
	case "", "auto":
		return AccelAuto, nil
	case "vaapi":
		return AccelVAAPI, nil
	case "software":
		return AccelSoftware, nil
	default:
		return AccelAuto, fmt.Errorf("invalid acceleration mode %q (must be auto, vaapi, or software)", s)
	}
}
