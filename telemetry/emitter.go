// Package telemetry publishes capture health and throughput over MQTT so a
// fleet of cameras can be watched without polling them.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config addresses the broker. Broker is a full URI (tcp://host:1883).
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Emitter publishes JSON messages under the configured topic prefix.
type Emitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// New validates the config and builds an unconnected emitter.
func New(cfg Config) (*Emitter, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("telemetry: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hsi-camera"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "hsi/camera"
	}
	return &Emitter{cfg: cfg}, nil
}

// Connect establishes the broker connection. Reconnects afterwards are
// automatic; publishes while disconnected count as errors.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("telemetry: mqtt connected",
			"broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("telemetry: mqtt connection lost, auto-reconnecting",
			"error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// PublishStats publishes a throughput snapshot on <prefix>/stats.
func (e *Emitter) PublishStats(v any) error {
	return e.publish("stats", v)
}

// PublishHealth publishes a liveness message on <prefix>/health.
func (e *Emitter) PublishHealth(v any) error {
	return e.publish("health", v)
}

func (e *Emitter) publish(sub string, v any) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("telemetry: not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("telemetry: marshal: %w", err)
	}

	topic := e.cfg.TopicPrefix + "/" + sub
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("telemetry: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("telemetry: publish %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	slog.Debug("telemetry: published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("telemetry: mqtt disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats returns the emitter counters.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
