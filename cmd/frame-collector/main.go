package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	framecollector "github.com/e7canasta/orion-care-sensor/modules/frame-collector"
	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/frame-collector/internal/rtsp"
)

// Version information
const version = "v0.1.0"

// Exit codes
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

// options holds the parsed command line
type options struct {
	configPath string
	logFormat  string
	debug      bool
	version    bool

	fs *flag.FlagSet

	url         string
	source      string
	output      string
	mode        string
	interval    float64
	threshold   float64
	duration    float64
	maxFrames   uint64
	samples     int
	seed        int64
	resolution  string
	fps         float64
	accel       string
	jpegQuality int
	mqttBroker  string
	mqttCodec   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if opts.version {
		fmt.Fprintf(stdout, "frame-collector %s\n", version)
		return exitOK
	}

	logger := newLogger(stderr, opts.logFormat, opts.debug)
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fmt.Fprintf(stderr, "Usage example:\n")
		fmt.Fprintf(stderr, "  frame-collector -url rtsp://192.168.1.100/stream\n")
		fmt.Fprintf(stderr, "  frame-collector -url rtsp://192.168.1.100/stream -mode random -duration 600 -samples 50\n\n")
		return exitConfig
	}

	if err := rtsp.CheckAvailable(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Install GStreamer 1.x with the base, good and libav plugin sets.\n")
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := collect(ctx, cfg, logger, stdout); err != nil {
		logger.Error("frame-collector: collection failed", "error", err)
		return exitFatal
	}
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("frame-collector", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file (optional)")
	fs.StringVar(&opts.url, "url", "", "Stream URL, rtsp:// or any GStreamer URI (required)")
	fs.StringVar(&opts.source, "source", "", "Source stream identifier")
	fs.StringVar(&opts.output, "output", "./data/raw", "Output root directory")
	fs.StringVar(&opts.mode, "mode", config.ModeContinuous, "Collection mode: continuous, random")
	fs.Float64Var(&opts.interval, "interval", 1.0, "Minimum seconds between samples (continuous)")
	fs.Float64Var(&opts.threshold, "threshold", 0.05, "Minimum normalized change to save a frame (continuous)")
	fs.Float64Var(&opts.duration, "duration", 0, "Session length in seconds (required for random mode)")
	fs.Uint64Var(&opts.maxFrames, "max-frames", 0, "Maximum frames to save (continuous, 0 = unlimited)")
	fs.IntVar(&opts.samples, "samples", 0, "Number of frames to save (random)")
	fs.Int64Var(&opts.seed, "seed", 0, "Random schedule seed (0 = time-based)")
	fs.StringVar(&opts.resolution, "resolution", "native", "Resolution: native, 512p, 720p, 1080p")
	fs.Float64Var(&opts.fps, "fps", 0, "Target decode FPS (0 = source rate)")
	fs.StringVar(&opts.accel, "accel", "auto", "Acceleration mode: auto, vaapi, software")
	fs.IntVar(&opts.jpegQuality, "jpeg-quality", 95, "JPEG quality (1-100)")
	fs.StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker for save notifications (optional)")
	fs.StringVar(&opts.mqttCodec, "mqtt-codec", "json", "MQTT payload codec: json, msgpack")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format: text, json")
	fs.BoolVar(&opts.version, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.fs = fs
	return opts, nil
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// loadConfig reads the config file (if any), applies explicitly set flags on
// top and validates the result.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyFlags(cfg, opts)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies flags the user actually set onto cfg
func applyFlags(cfg *config.Config, opts *options) {
	opts.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Camera.URL = opts.url
		case "source":
			cfg.Camera.SourceStream = opts.source
		case "output":
			cfg.Output.Dir = opts.output
		case "mode":
			cfg.Collector.Mode = opts.mode
		case "interval":
			cfg.Collector.IntervalS = opts.interval
		case "threshold":
			cfg.Collector.Threshold = opts.threshold
		case "duration":
			cfg.Collector.DurationS = opts.duration
		case "max-frames":
			cfg.Collector.MaxFrames = opts.maxFrames
		case "samples":
			cfg.Collector.Samples = opts.samples
		case "seed":
			cfg.Collector.Seed = opts.seed
		case "resolution":
			cfg.Stream.Resolution = opts.resolution
		case "fps":
			cfg.Stream.FPS = opts.fps
		case "accel":
			cfg.Stream.Acceleration = opts.accel
		case "jpeg-quality":
			cfg.Output.JPEGQuality = opts.jpegQuality
		case "mqtt-broker":
			cfg.MQTT.Broker = opts.mqttBroker
		case "mqtt-codec":
			cfg.MQTT.Codec = opts.mqttCodec
		}
	})
}

func collect(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	res, err := framecollector.ParseResolution(cfg.Stream.Resolution)
	if err != nil {
		return err
	}
	accel, err := framecollector.ParseHardwareAccel(cfg.Stream.Acceleration)
	if err != nil {
		return err
	}

	source, err := framecollector.NewRTSPSource(framecollector.RTSPConfig{
		URL:          cfg.Camera.URL,
		Resolution:   res,
		TargetFPS:    cfg.Stream.FPS,
		SourceStream: cfg.Camera.SourceStream,
		Acceleration: accel,
		OpenTimeout:  cfg.OpenTimeout(),
		ReadTimeout:  cfg.ReadTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	archiver, err := framecollector.NewArchiver(cfg.Output.Dir, cfg.Output.JPEGQuality, logger)
	if err != nil {
		return err
	}

	collectorCfg := framecollector.Config{
		Source:         source,
		Archiver:       archiver,
		Logger:         logger,
		ReconnectAfter: cfg.Stream.ReconnectAfter,
	}

	if cfg.MQTT.Broker != "" {
		sink, err := notify.NewMQTTSink(notify.Config{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			TopicPrefix:  cfg.MQTT.TopicPrefix,
			QoS:          cfg.MQTT.QoS,
			Codec:        cfg.MQTT.Codec,
			SourceStream: cfg.Camera.SourceStream,
		}, logger)
		if err != nil {
			return err
		}
		// Notifications are optional: a broker outage never blocks collection.
		if err := sink.Connect(ctx); err != nil {
			logger.Warn("frame-collector: mqtt unavailable, continuing without notifications", "error", err)
		} else {
			defer sink.Disconnect()
			collectorCfg.Events = sink
		}
	}

	collector, err := framecollector.New(collectorCfg)
	if err != nil {
		return err
	}

	logger.Info("frame-collector: starting",
		"version", version,
		"url", cfg.Camera.URL,
		"mode", cfg.Collector.Mode,
		"output", cfg.Output.Dir,
	)

	var sum *framecollector.Summary
	switch cfg.Collector.Mode {
	case config.ModeRandom:
		var rng *rand.Rand
		if cfg.Collector.Seed != 0 {
			rng = rand.New(rand.NewSource(cfg.Collector.Seed))
		}
		_, sum, err = collector.CollectRandomSamples(ctx, framecollector.RandomOptions{
			Duration: cfg.Duration(),
			Samples:  cfg.Collector.Samples,
			Rand:     rng,
		})
	default:
		sum, err = collector.Collect(ctx, framecollector.ContinuousOptions{
			Interval:  cfg.Interval(),
			Threshold: cfg.Collector.Threshold,
			Duration:  cfg.Duration(),
			MaxFrames: cfg.Collector.MaxFrames,
		})
	}
	if err != nil {
		return err
	}

	saved, dropped := archiver.Stats()
	printSummary(stdout, sum, source.Stats(), saved, dropped)
	return nil
}

func printSummary(w io.Writer, sum *framecollector.Summary, src framecollector.SourceStats, saved, dropped uint64) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Collection Summary:\n")
	fmt.Fprintf(w, "  Session:        %s\n", sum.SessionID)
	fmt.Fprintf(w, "  Mode:           %s\n", sum.Policy)
	fmt.Fprintf(w, "  Stop Reason:    %s\n", sum.StopReason)
	fmt.Fprintf(w, "  Duration:       %s\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Frames Read:    %d\n", sum.FramesRead)
	fmt.Fprintf(w, "  Frames Saved:   %d\n", sum.FramesSaved)
	if sum.SaveFailures > 0 || sum.ReadFailures > 0 {
		fmt.Fprintf(w, "  Save Failures:  %d\n", sum.SaveFailures)
		fmt.Fprintf(w, "  Read Failures:  %d\n", sum.ReadFailures)
		fmt.Fprintf(w, "  Reopens:        %d\n", sum.Reopens)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Source:\n")
	fmt.Fprintf(w, "  Frames Decoded: %d\n", src.FramesRead)
	fmt.Fprintf(w, "  Bytes Read:     %d\n", src.BytesRead)
	if errs := src.ErrorsNetwork + src.ErrorsCodec + src.ErrorsAuth + src.ErrorsUnknown; errs > 0 {
		fmt.Fprintf(w, "  Errors:         network=%d codec=%d auth=%d unknown=%d\n",
			src.ErrorsNetwork, src.ErrorsCodec, src.ErrorsAuth, src.ErrorsUnknown)
	}
	fmt.Fprintf(w, "Archive:\n")
	fmt.Fprintf(w, "  Files Written:  %d\n", saved)
	fmt.Fprintf(w, "  Files Dropped:  %d\n", dropped)
	fmt.Fprintf(w, "\n")
}
