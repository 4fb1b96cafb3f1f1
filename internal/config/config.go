// Package config loads the frame collector's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Collection modes
const (
	ModeContinuous = "continuous"
	ModeRandom     = "random"
)

// Config represents the complete frame collector configuration
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	Collector CollectorConfig `yaml:"collector"`
	Output    OutputConfig    `yaml:"output"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	URL          string `yaml:"url"`           // rtsp:// or any URI uridecodebin accepts
	SourceStream string `yaml:"source_stream"` // label attached to frames and events
}

// StreamConfig contains decode settings
type StreamConfig struct {
	Resolution     string  `yaml:"resolution"`      // native, 512p, 720p, 1080p
	FPS            float64 `yaml:"fps"`             // target fps (0 = source rate)
	Acceleration   string  `yaml:"acceleration"`    // auto, vaapi, software
	OpenTimeoutS   int     `yaml:"open_timeout_s"`  // wait for PLAYING (default: 10)
	ReadTimeoutMS  int     `yaml:"read_timeout_ms"` // per-frame pull timeout (default: 2000)
	ReconnectAfter int     `yaml:"reconnect_after"` // consecutive read failures before reopen (0 = never)
}

// CollectorConfig contains sampling settings
type CollectorConfig struct {
	Mode      string  `yaml:"mode"`       // continuous, random
	IntervalS float64 `yaml:"interval_s"` // min seconds between samples (continuous)
	Threshold float64 `yaml:"threshold"`  // min normalized change (continuous)
	DurationS float64 `yaml:"duration_s"` // session length (0 = unbounded in continuous mode)
	MaxFrames uint64  `yaml:"max_frames"` // saved-frame cap (continuous, 0 = none)
	Samples   int     `yaml:"samples"`    // frame count (random)
	Seed      int64   `yaml:"seed"`       // random schedule seed (0 = time-based)
}

// OutputConfig contains archive settings
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// MQTTConfig contains optional MQTT notification settings
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables notifications
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Codec       string `yaml:"codec"` // json, msgpack
}

// Default returns the collector defaults
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Resolution:     "native",
			Acceleration:   "auto",
			OpenTimeoutS:   10,
			ReadTimeoutMS:  2000,
			ReconnectAfter: 10,
		},
		Collector: CollectorConfig{
			Mode:      ModeContinuous,
			IntervalS: 1.0,
			Threshold: 0.05,
		},
		Output: OutputConfig{
			Dir:         "./data/raw",
			JPEGQuality: 95,
		},
		MQTT: MQTTConfig{
			ClientID:    "frame-collector",
			TopicPrefix: "frame-collector",
			QoS:         0,
			Codec:       "json",
		},
	}
}

// Load reads a YAML configuration file on top of Default()
//
// Validation is left to the caller so flags can override file values first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Interval returns collector.interval_s as a duration
func (c *Config) Interval() time.Duration { return seconds(c.Collector.IntervalS) }

// Duration returns collector.duration_s as a duration
func (c *Config) Duration() time.Duration { return seconds(c.Collector.DurationS) }

// OpenTimeout returns stream.open_timeout_s as a duration
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.Stream.OpenTimeoutS) * time.Second
}

// ReadTimeout returns stream.read_timeout_ms as a duration
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Stream.ReadTimeoutMS) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
