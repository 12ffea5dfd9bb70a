package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends telemetry the way a sensor node does. It backs the tools
// CLI and tests.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

func NewPublisher(cfg config.Config, clientID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)

	return &Publisher{client: mqtt.NewClient(opts), topic: cfg.MQTTTopic, logger: logger}
}

func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		p.client.Disconnect(0)
		return ctx.Err()
	}
}

// TopicFor fills the single-level wildcard of the subscription topic with the
// device id, so published telemetry matches what Subscriber listens on.
func TopicFor(pattern, deviceID string) string {
	return strings.Replace(pattern, "+", deviceID, 1)
}

// PublishTelemetry publishes t at QoS 1 on the device's topic.
func (p *Publisher) PublishTelemetry(t types.Telemetry) error {
	if err := t.Validate(); err != nil {
		return err
	}
	topic := TopicFor(p.topic, t.DeviceID)

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	p.logger.Debug("published telemetry", "topic", topic, "device_id", t.DeviceID)
	return nil
}

func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}
