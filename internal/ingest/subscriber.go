// Package ingest subscribes to the MQTT telemetry topic and stores every
// valid reading through the weather service. A message that cannot be
// decoded or validated is logged and dropped: there is no caller to report
// the failure to.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"weatherapi/internal/config"
	"weatherapi/internal/core"
	"weatherapi/internal/types"
	"weatherapi/internal/weather"
)

const (
	connectPoll      = 200 * time.Millisecond
	subscribeTimeout = 5 * time.Second
	saveTimeout      = 10 * time.Second
)

// Saver stores a reading. weather.Service satisfies it.
type Saver interface {
	SaveReading(ctx context.Context, r *types.Reading) (*types.Reading, error)
}

// Subscriber owns the MQTT client and the connection state.
type Subscriber struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	saver     Saver
	validator *core.Validator
	logger    *slog.Logger

	mu        sync.RWMutex
	connected bool
	baseCtx   context.Context

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber configures a client for cfg. Nothing connects until Run.
func NewSubscriber(cfg config.MQTTConfig, saver Saver, validator *core.Validator, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = core.NewValidator(logger)
	}
	s := &Subscriber{
		cfg:       cfg,
		saver:     saver,
		validator: validator,
		logger:    logger.With("component", "mqtt"),
		baseCtx:   context.Background(),
		stopCh:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Subscribing from the connect handler restores the subscription after
	// every automatic reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
		if err := s.subscribe(c); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Name implements core.HealthProbe.
func (s *Subscriber) Name() string { return "mqtt" }

// Check implements core.HealthProbe.
func (s *Subscriber) Check(_ context.Context) error {
	if !s.IsConnected() {
		return types.NewAppError(types.ErrCodeUpstreamBrokerUnavailable, "mqtt broker not connected", nil)
	}
	return nil
}

// Run connects, then blocks until ctx is done and disconnects. It returns
// nil on a clean shutdown.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return types.NewAppError(types.ErrCodeUpstreamBrokerUnavailable, "mqtt connect failed", err)
	}

	<-ctx.Done()
	s.Close()
	return nil
}

func (s *Subscriber) connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	token := s.client.Connect()
	for !token.WaitTimeout(connectPoll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.cfg.Topic, "qos", s.cfg.QoS)
	return nil
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()

	s.handleMessage(ctx, msg.Topic(), msg.Payload())
}

// handleMessage decodes, validates and stores one payload. It reports
// whether the reading was stored.
func (s *Subscriber) handleMessage(ctx context.Context, topic string, payload []byte) bool {
	log := s.logger.With("topic", topic)
	log.Debug("received mqtt message", "size", len(payload))

	var p weather.ReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("dropping undecodable reading", "error", err, "payload", string(payload))
		return false
	}
	if err := s.validator.ValidateStruct(p); err != nil {
		log.Warn("dropping invalid reading", "sensor_id", p.SensorID, "error", err)
		return false
	}
	reading, err := p.ToReading()
	if err != nil {
		log.Warn("dropping invalid reading", "sensor_id", p.SensorID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	saved, err := s.saver.SaveReading(ctx, reading)
	if err != nil {
		log.Error("failed to store reading", "sensor_id", reading.SensorID, "error", err)
		return false
	}
	log.Debug("stored reading", "id", saved.ID, "sensor_id", saved.SensorID)
	return true
}

// IsConnected reports whether the client currently holds a connection.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Close unsubscribes and disconnects. Safe to call more than once.
func (s *Subscriber) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
