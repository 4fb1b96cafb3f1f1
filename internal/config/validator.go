package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	validResolutions = []string{"native", "512p", "720p", "1080p"}
	validAccel       = []string{"auto", "vaapi", "software"}
	validCodecs      = []string{"json", "msgpack"}
)

// Validate checks the configuration and fills derived defaults
//
// Every problem is reported, joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	// Validate camera
	if cfg.Camera.URL == "" {
		errs = append(errs, fmt.Errorf("camera.url is required"))
	}

	// Validate stream config
	if !oneOf(cfg.Stream.Resolution, validResolutions) {
		errs = append(errs, fmt.Errorf("stream.resolution must be one of %s, got %q",
			strings.Join(validResolutions, ", "), cfg.Stream.Resolution))
	}
	if cfg.Stream.FPS < 0 || cfg.Stream.FPS > 30 {
		errs = append(errs, fmt.Errorf("stream.fps must be within [0, 30], got %.2f", cfg.Stream.FPS))
	}
	if !oneOf(cfg.Stream.Acceleration, validAccel) {
		errs = append(errs, fmt.Errorf("stream.acceleration must be one of %s, got %q",
			strings.Join(validAccel, ", "), cfg.Stream.Acceleration))
	}
	if cfg.Stream.ReconnectAfter < 0 {
		errs = append(errs, fmt.Errorf("stream.reconnect_after must be >= 0"))
	}

	// Validate collector config
	switch cfg.Collector.Mode {
	case ModeContinuous:
		if cfg.Collector.IntervalS < 0 {
			errs = append(errs, fmt.Errorf("collector.interval_s must be >= 0"))
		}
		if cfg.Collector.Threshold < 0 || cfg.Collector.Threshold > 1 {
			errs = append(errs, fmt.Errorf("collector.threshold must be within [0, 1], got %.3f",
				cfg.Collector.Threshold))
		}
		if cfg.Collector.DurationS < 0 {
			errs = append(errs, fmt.Errorf("collector.duration_s must be >= 0"))
		}
	case ModeRandom:
		if cfg.Collector.DurationS <= 0 {
			errs = append(errs, fmt.Errorf("collector.duration_s must be > 0 in random mode"))
		}
		if cfg.Collector.Samples <= 0 {
			errs = append(errs, fmt.Errorf("collector.samples must be > 0 in random mode"))
		} else if whole := int(math.Floor(cfg.Collector.DurationS)); cfg.Collector.Samples > whole {
			errs = append(errs, fmt.Errorf("collector.samples (%d) must not exceed whole seconds of duration (%d)",
				cfg.Collector.Samples, whole))
		}
	default:
		errs = append(errs, fmt.Errorf("collector.mode must be %q or %q, got %q",
			ModeContinuous, ModeRandom, cfg.Collector.Mode))
	}

	// Validate output
	if cfg.Output.Dir == "" {
		errs = append(errs, fmt.Errorf("output.dir is required"))
	}
	if cfg.Output.JPEGQuality < 1 || cfg.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("output.jpeg_quality must be within [1, 100], got %d",
			cfg.Output.JPEGQuality))
	}

	// Validate MQTT (only when enabled)
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS))
		}
		if cfg.MQTT.Codec == "" {
			cfg.MQTT.Codec = "json"
		}
		if !oneOf(cfg.MQTT.Codec, validCodecs) {
			errs = append(errs, fmt.Errorf("mqtt.codec must be one of %s, got %q",
				strings.Join(validCodecs, ", "), cfg.MQTT.Codec))
		}
		// Set default topic prefix if not provided
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "frame-collector"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "frame-collector"
		}
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
