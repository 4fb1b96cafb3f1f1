package rtsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Acceleration modes (mirrors framecollector.HardwareAccel)
const (
	AccelAuto     = 0
	AccelVAAPI    = 1
	AccelSoftware = 2
)

// appSinkName is the name of the appsink element in every launch string
const appSinkName = "sink"

var (
	// ErrEOS is returned when the pipeline reached end of stream
	ErrEOS = errors.New("rtsp: end of stream")
	// ErrPullTimeout is returned when no sample arrived within the read timeout
	ErrPullTimeout = errors.New("rtsp: no sample within timeout")
)

// PipelineConfig contains configuration for GStreamer pipeline creation
type PipelineConfig struct {
	URL          string
	Width        int     // 0 keeps the source width
	Height       int     // 0 keeps the source height
	TargetFPS    float64 // 0 disables videorate
	Acceleration int     // 0=Auto, 1=VAAPI, 2=Software

	Logger *slog.Logger // nil uses slog.Default()
}

// PipelineElements holds references to the GStreamer pipeline and its appsink
type PipelineElements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	UsingVAAPI bool
	Launch     string

	logger *slog.Logger
}

// Sample is a decoded RGB buffer copied out of GStreamer memory
type Sample struct {
	Data   []byte
	Width  int
	Height int
}

// PipelineError is a GStreamer bus error with its telemetry category
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error [%s]: %s", e.Category, e.Message)
}

// CreatePipeline builds a GStreamer pipeline from a launch string
//
// Pipeline structure (rtsp:// sources):
//
//	rtspsrc → rtph264depay → h264parse → decoder → videoconvert →
//	[videoscale] → [videorate] → capsfilter(RGB) → appsink
//
// Any other URI goes through uridecodebin instead of the RTSP/H.264 chain.
//
// The pipeline is configured but NOT started (state remains NULL).
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("stream URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	usingVAAPI, err := resolveAcceleration(cfg.Acceleration, logger)
	if err != nil {
		return nil, err
	}

	launch := BuildLaunch(cfg, usingVAAPI)
	logger.Debug("rtsp: creating pipeline", "launch", launch)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName(appSinkName)
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to find appsink: %w", err)
	}

	return &PipelineElements{
		Pipeline:   pipeline,
		AppSink:    app.SinkFromElement(elem),
		UsingVAAPI: usingVAAPI,
		Launch:     launch,
		logger:     logger,
	}, nil
}

// BuildLaunch renders the gst-launch description for cfg
func BuildLaunch(cfg PipelineConfig, usingVAAPI bool) string {
	var parts []string

	if isRTSP(cfg.URL) {
		// protocols=tcp required for go2rtc compatibility
		latency := 200
		if cfg.TargetFPS > 0 && cfg.TargetFPS <= 2.0 {
			latency = 50
		}
		parts = append(parts,
			fmt.Sprintf("rtspsrc location=%q protocols=tcp latency=%d", cfg.URL, latency),
			"rtph264depay request-keyframe=true",
			"h264parse",
		)
		if usingVAAPI {
			parts = append(parts, "vaapih264dec low-latency=true", "vaapipostproc")
		} else {
			parts = append(parts, "avdec_h264 max-threads=0 output-corrupt=false")
		}
	} else {
		parts = append(parts, fmt.Sprintf("uridecodebin uri=%q", cfg.URL))
	}

	parts = append(parts, "videoconvert n-threads=0")
	if cfg.Width > 0 && cfg.Height > 0 {
		parts = append(parts, "videoscale")
	}
	if cfg.TargetFPS > 0 {
		parts = append(parts, "videorate drop-only=true skip-to-first=true")
	}
	parts = append(parts,
		buildCaps(cfg.Width, cfg.Height, cfg.TargetFPS),
		fmt.Sprintf("appsink name=%s sync=false max-buffers=1 drop=true", appSinkName),
	)

	return strings.Join(parts, " ! ")
}

// buildCaps builds the RGB caps string with optional size and framerate
//
// Handles fractional framerates:
//   - fps >= 1.0: framerate = fps/1 (e.g., 5.0 → 5/1)
//   - fps < 1.0: framerate = 1/(1/fps) (e.g., 0.5 → 1/2)
func buildCaps(width, height int, fps float64) string {
	caps := "video/x-raw,format=RGB"
	if width > 0 && height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", width, height)
	}
	if fps > 0 {
		numerator, denominator := 1, 1
		if fps < 1.0 {
			denominator = int(1.0 / fps)
		} else {
			numerator = int(fps)
		}
		caps += fmt.Sprintf(",framerate=%d/%d", numerator, denominator)
	}
	return caps
}

func isRTSP(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "rtsp://") || strings.HasPrefix(lower, "rtsps://")
}

// resolveAcceleration decides whether the VAAPI decoder chain is used
func resolveAcceleration(mode int, logger *slog.Logger) (bool, error) {
	switch mode {
	case AccelSoftware:
		return false, nil
	case AccelVAAPI:
		if !elementAvailable("vaapih264dec") || !elementAvailable("vaapipostproc") {
			return false, fmt.Errorf("VAAPI not available (install gstreamer1.0-vaapi)")
		}
		return true, nil
	case AccelAuto:
		if elementAvailable("vaapih264dec") && elementAvailable("vaapipostproc") {
			logger.Info("rtsp: using VAAPI pipeline (vaapih264dec)")
			return true, nil
		}
		logger.Warn("rtsp: VAAPI unavailable, using software decoder")
		return false, nil
	default:
		return false, fmt.Errorf("invalid acceleration mode: %d", mode)
	}
}

func elementAvailable(name string) bool {
	elem, err := gst.NewElement(name)
	if err != nil {
		return false
	}
	elem.SetState(gst.StateNull)
	return true
}

// Start sets the pipeline to PLAYING and waits until it gets there
//
// Returns a *PipelineError if the bus reports an error first (unreachable
// host, auth failure, missing plugin), or a timeout error.
func Start(ctx context.Context, elements *PipelineElements, timeout time.Duration) error {
	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	bus := elements.Pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Poll with short timeout for responsive cancellation
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			return parseBusError(msg)
		case gst.MessageEOS:
			return ErrEOS
		case gst.MessageStateChanged:
			if msg.Source() != elements.Pipeline.GetName() {
				continue
			}
			_, newState := msg.ParseStateChanged()
			if newState == gst.StatePlaying {
				elements.log().Debug("rtsp: pipeline reached PLAYING state")
				return nil
			}
		}
	}

	return fmt.Errorf("timed out after %s waiting for PLAYING state", timeout)
}

func (e *PipelineElements) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Pull blocks up to timeout for the next sample
//
// Returns ErrEOS at end of stream, a *PipelineError if the bus carries an
// error, or ErrPullTimeout when nothing arrived.
func Pull(elements *PipelineElements, timeout time.Duration) (*Sample, error) {
	sample := elements.AppSink.TryPullSample(timeout)
	if sample == nil {
		if elements.AppSink.IsEOS() {
			return nil, ErrEOS
		}
		if err := CheckBus(elements); err != nil {
			return nil, err
		}
		return nil, ErrPullTimeout
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("failed to get buffer from sample")
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, fmt.Errorf("empty buffer received")
	}

	// Copy frame data (GStreamer will reuse buffer)
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	width, height := capsDimensions(sample.GetCaps())
	return &Sample{Data: PackRGB(frameData, width, height), Width: width, Height: height}, nil
}

// PackRGB strips row padding from an RGB buffer
//
// GStreamer aligns each RGB row to 4 bytes, so widths whose row size is not a
// multiple of 4 (e.g. 910 px) arrive with padding. Buffers of any other size
// are returned unchanged.
func PackRGB(data []byte, width, height int) []byte {
	if width <= 0 || height <= 0 {
		return data
	}
	row := width * 3
	stride := (row + 3) &^ 3
	if stride == row || len(data) != stride*height {
		return data
	}

	packed := make([]byte, row*height)
	for y := 0; y < height; y++ {
		copy(packed[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return packed
}

// CheckAvailable verifies that GStreamer can be initialized and can create
// a basic element.
func CheckAvailable() error {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	if !elementAvailable("fakesrc") {
		return fmt.Errorf("GStreamer not available or not properly installed")
	}
	return nil
}

// CheckBus drains pending bus messages without blocking
func CheckBus(elements *PipelineElements) error {
	bus := elements.Pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		switch msg.Type() {
		case gst.MessageError:
			return parseBusError(msg)
		case gst.MessageEOS:
			return ErrEOS
		}
	}
}

// DestroyPipeline cleans up GStreamer pipeline resources
//
// Safe to call even if pipeline is already destroyed.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}

	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}

	return nil
}

func parseBusError(msg *gst.Message) error {
	gerr := msg.ParseError()
	if gerr == nil {
		return &PipelineError{Category: ErrCategoryUnknown, Message: "unknown pipeline error"}
	}
	return &PipelineError{
		Category: ClassifyGStreamerError(gerr.Error(), gerr.DebugString()),
		Message:  gerr.Error(),
		Debug:    gerr.DebugString(),
	}
}

func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0
	}
	return intField(st, "width"), intField(st, "height")
}

func intField(st *gst.Structure, name string) int {
	v, err := st.GetValue(name)
	if err != nil {
		return 0
	}
	if n, ok := v.(int); ok {
		return n
	}
	return 0
}
