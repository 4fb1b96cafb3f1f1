// Package notify publishes collection events to an MQTT broker.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	framecollector "github.com/e7canasta/orion-care-sensor/modules/frame-collector"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
)

// Config contains MQTT sink settings
type Config struct {
	Broker       string // host:port or full URL (tcp://, ssl://, ws://)
	ClientID     string
	TopicPrefix  string
	QoS          byte
	Codec        string // json (default) or msgpack
	SourceStream string // copied into every event

	ConnectTimeout time.Duration // default: 5s
	PublishTimeout time.Duration // default: 2s
}

// publisher is the subset of mqtt.Client the sink needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink implements framecollector.EventSink on top of paho
type MQTTSink struct {
	cfg    Config
	codec  Codec
	logger *slog.Logger

	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

var _ framecollector.EventSink = (*MQTTSink)(nil)

// NewMQTTSink creates a sink. Call Connect before the session starts.
func NewMQTTSink(cfg Config, logger *slog.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("notify: broker is required")
	}
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "frame-collector"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "frame-collector"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MQTTSink{
		cfg:       cfg,
		codec:     codec,
		logger:    logger,
		published: make(map[string]uint64),
	}, nil
}

// Connect establishes connection to the MQTT broker
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	// Auto-reconnect only covers drops after the first connect. A failed
	// initial connect must not leave a client retrying in the background.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)

	var abandoned atomic.Bool
	opts.OnConnect = func(c mqtt.Client) {
		if abandoned.Load() {
			return
		}
		s.setConnected(true)
		s.logger.Info("notify: mqtt connection established",
			"broker", s.cfg.Broker,
			"client_id", s.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("notify: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", s.cfg.Broker,
		)
	}

	client := mqtt.NewClient(opts)
	s.logger.Info("notify: connecting to mqtt broker", "broker", s.cfg.Broker)

	token := client.Connect()
	if err := wait(ctx, token, s.cfg.ConnectTimeout); err != nil {
		abandoned.Store(true)
		client.Disconnect(0)
		s.setConnected(false)
		return fmt.Errorf("notify: mqtt connection failed: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.pub = client
	s.connected = true
	s.mu.Unlock()
	return nil
}

// FrameSaved publishes a FrameSavedEvent to <prefix>/saved
func (s *MQTTSink) FrameSaved(ctx context.Context, rec framecollector.SavedFrameRecord) error {
	return s.publish(ctx, s.topic("saved"), newFrameSavedEvent(rec, s.cfg.SourceStream))
}

// SessionCompleted publishes a SessionSummaryEvent to <prefix>/summary
func (s *MQTTSink) SessionCompleted(ctx context.Context, sum framecollector.Summary) error {
	return s.publish(ctx, s.topic("summary"), newSessionSummaryEvent(sum, s.cfg.SourceStream))
}

// Disconnect closes the MQTT connection
func (s *MQTTSink) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.connected = false
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250) // 250ms grace period
		s.logger.Info("notify: mqtt disconnected")
	}
}

// Stats contains sink statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns sink statistics
func (s *MQTTSink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	published := make(map[string]uint64, len(s.published))
	for k, v := range s.published {
		published[k] = v
	}
	return Stats{Connected: s.connected, Published: published, Errors: s.errors}
}

func (s *MQTTSink) publish(ctx context.Context, topic string, event any) error {
	s.mu.RLock()
	pub, connected := s.pub, s.connected
	s.mu.RUnlock()

	if pub == nil || !connected {
		s.countError()
		return fmt.Errorf("notify: mqtt not connected")
	}

	payload, err := s.codec.Marshal(event)
	if err != nil {
		s.countError()
		return fmt.Errorf("notify: failed to marshal event: %w", err)
	}

	token := pub.Publish(topic, s.cfg.QoS, false, payload)
	if err := wait(ctx, token, s.cfg.PublishTimeout); err != nil {
		s.countError()
		return fmt.Errorf("notify: publish to %s failed: %w", topic, err)
	}

	s.mu.Lock()
	s.published[topic]++
	s.mu.Unlock()

	s.logger.Debug("notify: event published",
		"topic", topic,
		"qos", s.cfg.QoS,
		"codec", s.codec.Name(),
		"size", len(payload),
	)
	return nil
}

func (s *MQTTSink) topic(kind string) string {
	return strings.TrimSuffix(s.cfg.TopicPrefix, "/") + "/" + kind
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// wait blocks until the token completes, the timeout expires or ctx is done
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// brokerURL adds the tcp:// scheme to bare host:port addresses
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
