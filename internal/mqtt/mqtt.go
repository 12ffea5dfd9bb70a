package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrStopped = errors.New("subscriber stopped")

type Subscriber struct {
	client mqtt.Client
	cfg    config.Config
	logger *slog.Logger

	mu         sync.RWMutex
	connected  bool
	subscribed bool
	handler    func(telemetry types.Telemetry) error

	stopCh   chan struct{}
	stopOnce sync.Once
}

// SetMessageHandler sets the callback for valid telemetry messages.
func (s *Subscriber) SetMessageHandler(handler func(telemetry types.Telemetry) error) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Clean sessions drop subscriptions, so subscribe on every (re)connect.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.subscribed = false
		s.mu.Unlock()
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect connects to the broker and returns once the telemetry topic is
// subscribed. It gives up waiting when ctx is done or Disconnect is called.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	if s.IsSubscribed() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	connected := false
	for {
		if !connected && token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			connected = true
		}
		if connected {
			// OnConnectHandler subscribes asynchronously.
			if s.IsSubscribed() {
				return nil
			}
			time.Sleep(poll / 4)
		}

		// On timeout the client keeps retrying in the background and
		// OnConnectHandler subscribes once the broker is reachable.
		if err := s.interrupted(ctx); err != nil {
			return err
		}
	}
}

func (s *Subscriber) interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	default:
		return nil
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var telemetry types.Telemetry
	if err := json.Unmarshal(payload, &telemetry); err != nil {
		s.logger.Warn("failed to parse telemetry message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := telemetry.Validate(); err != nil {
		s.logger.Warn("invalid telemetry message",
			"topic", topic,
			"device_id", telemetry.DeviceID,
			"error", err,
		)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(telemetry); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"device_id", telemetry.DeviceID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed telemetry message", "device_id", telemetry.DeviceID)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

func (s *Subscriber) IsSubscribed() bool {
	s.mu.RLock()
	subscribed := s.subscribed
	s.mu.RUnlock()
	return subscribed && s.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Only the first call has any effect.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		if s.IsConnected() {
			token := s.client.Unsubscribe(s.cfg.MQTTTopic)
			token.WaitTimeout(2 * time.Second)
		}
		s.client.Disconnect(250)

		s.mu.Lock()
		s.connected = false
		s.subscribed = false
		s.mu.Unlock()
		s.logger.Info("mqtt subscriber disconnected")
	})
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
