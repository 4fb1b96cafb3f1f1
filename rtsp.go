package framecollector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/rtsp"
)

const (
	// DefaultOpenTimeout bounds the wait for the pipeline to reach PLAYING
	DefaultOpenTimeout = 10 * time.Second
	// DefaultReadTimeout bounds a single frame pull
	DefaultReadTimeout = 2 * time.Second
)

// RTSPConfig contains configuration for a GStreamer-backed frame source
type RTSPConfig struct {
	// URL is the stream address (rtsp://, or any URI uridecodebin accepts)
	URL string
	// Resolution scales decoded frames (ResNative keeps the source size)
	Resolution Resolution
	// TargetFPS limits decoded frames per second (0 = source rate)
	TargetFPS float64
	// SourceStream labels frames (e.g., "kitchen-cam-1")
	SourceStream string
	// Acceleration selects VAAPI or software decode
	Acceleration HardwareAccel
	// OpenTimeout bounds Open (default: 10s)
	OpenTimeout time.Duration
	// ReadTimeout bounds each Read (default: 2s)
	ReadTimeout time.Duration
	// Logger is the structured logger (nil uses slog.Default())
	Logger *slog.Logger
}

// RTSPSource implements FrameSource by pulling samples from a GStreamer appsink
//
// Unlike a push-based stream, frames are pulled synchronously by Read, so the
// Collector sees frames strictly in capture order. The appsink keeps only the
// latest buffer (max-buffers=1 drop=true): a slow consumer gets fresh frames
// rather than a growing backlog.
type RTSPSource struct {
	url          string
	width        int
	height       int
	targetFPS    float64
	sourceStream string
	acceleration HardwareAccel
	openTimeout  time.Duration
	readTimeout  time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	elements *rtsp.PipelineElements

	// Statistics (atomic for thread-safety)
	frameCount    atomic.Uint64
	bytesRead     atomic.Uint64
	errorsNetwork atomic.Uint64
	errorsCodec   atomic.Uint64
	errorsAuth    atomic.Uint64
	errorsUnknown atomic.Uint64
}

// NewRTSPSource creates a source with fail-fast validation
//
// The pipeline is not built until Open.
func NewRTSPSource(cfg RTSPConfig) (*RTSPSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("frame-collector: stream URL is required")
	}
	if cfg.TargetFPS < 0 || cfg.TargetFPS > 30 {
		return nil, fmt.Errorf("frame-collector: invalid FPS %.2f (must be 0-30)", cfg.TargetFPS)
	}

	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	width, height := cfg.Resolution.Dimensions()
	return &RTSPSource{
		url:          cfg.URL,
		width:        width,
		height:       height,
		targetFPS:    cfg.TargetFPS,
		sourceStream: cfg.SourceStream,
		acceleration: cfg.Acceleration,
		openTimeout:  openTimeout,
		readTimeout:  readTimeout,
		logger:       logger,
	}, nil
}

// Describe returns the stream URL
func (s *RTSPSource) Describe() string { return s.url }

// Open builds the pipeline and waits for it to reach PLAYING
func (s *RTSPSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.elements != nil {
		return fmt.Errorf("%w: source already open", ErrStreamOpen)
	}

	elements, err := rtsp.CreatePipeline(rtsp.PipelineConfig{
		URL:          s.url,
		Width:        s.width,
		Height:       s.height,
		TargetFPS:    s.targetFPS,
		Acceleration: int(s.acceleration),
		Logger:       s.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamOpen, err)
	}

	if err := rtsp.Start(ctx, elements, s.openTimeout); err != nil {
		s.countError(err)
		if destroyErr := rtsp.DestroyPipeline(elements); destroyErr != nil {
			s.logger.Warn("frame-collector: failed to destroy pipeline", "error", destroyErr)
		}
		return fmt.Errorf("%w: %s: %v", ErrStreamOpen, s.url, err)
	}

	s.elements = elements
	s.logger.Info("frame-collector: stream opened",
		"url", s.url,
		"resolution", s.resolutionString(),
		"target_fps", s.targetFPS,
		"acceleration", s.acceleration.String(),
		"vaapi", elements.UsingVAAPI,
	)
	return nil
}

// Read pulls the next frame
//
// ctx is checked before the pull; the pull itself is bounded by ReadTimeout.
func (s *RTSPSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	elements := s.elements
	s.mu.Unlock()
	if elements == nil {
		return Frame{}, fmt.Errorf("%w: source not open", ErrReadFailed)
	}

	sample, err := rtsp.Pull(elements, s.readTimeout)
	if err != nil {
		s.countError(err)
		if errors.Is(err, rtsp.ErrEOS) {
			return Frame{}, fmt.Errorf("%w: %v", ErrEndOfStream, err)
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	width, height := sample.Width, sample.Height
	if width == 0 || height == 0 {
		width, height = s.width, s.height
	}

	frame := Frame{
		Seq:          s.frameCount.Add(1),
		Timestamp:    time.Now(),
		Width:        width,
		Height:       height,
		Data:         sample.Data,
		SourceStream: s.sourceStream,
		TraceID:      uuid.New().String(),
	}
	if err := frame.Validate(); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	s.bytesRead.Add(uint64(len(frame.Data)))
	return frame, nil
}

// Release tears the pipeline down. Idempotent.
func (s *RTSPSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.elements == nil {
		return nil
	}

	err := rtsp.DestroyPipeline(s.elements)
	s.elements = nil

	s.logger.Info("frame-collector: stream released",
		"url", s.url,
		"frames_read", s.frameCount.Load(),
		"bytes_read", s.bytesRead.Load(),
	)
	return err
}

// Stats returns frame and error counters
func (s *RTSPSource) Stats() SourceStats {
	return SourceStats{
		FramesRead:    s.frameCount.Load(),
		BytesRead:     s.bytesRead.Load(),
		ErrorsNetwork: s.errorsNetwork.Load(),
		ErrorsCodec:   s.errorsCodec.Load(),
		ErrorsAuth:    s.errorsAuth.Load(),
		ErrorsUnknown: s.errorsUnknown.Load(),
	}
}

// SourceStats holds RTSPSource counters
type SourceStats struct {
	FramesRead    uint64
	BytesRead     uint64
	ErrorsNetwork uint64 // Network-related errors (connection, timeout)
	ErrorsCodec   uint64 // Codec/stream errors (decode failures)
	ErrorsAuth    uint64 // Authentication/authorization errors
	ErrorsUnknown uint64 // Unclassified errors
}

// countError updates the category counters for pipeline errors
func (s *RTSPSource) countError(err error) {
	var perr *rtsp.PipelineError
	if !errors.As(err, &perr) {
		return
	}

	switch perr.Category {
	case rtsp.ErrCategoryNetwork:
		s.errorsNetwork.Add(1)
	case rtsp.ErrCategoryCodec:
		s.errorsCodec.Add(1)
	case rtsp.ErrCategoryAuth:
		s.errorsAuth.Add(1)
	default:
		s.errorsUnknown.Add(1)
	}

	s.logger.Error("frame-collector: pipeline error",
		"error", perr.Message,
		"debug", perr.Debug,
		"category", perr.Category.String(),
		"url", s.url,
	)
}

func (s *RTSPSource) resolutionString() string {
	if s.width == 0 || s.height == 0 {
		return "native"
	}
	return fmt.Sprintf("%dx%d", s.width, s.height)
}
