package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/T3-Labs/edge-av1/pkg/logger"
)

const mqttConnectTimeout = 2 * time.Second

// MQTTPublisher publishes to {prefix}/{source}.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	log         *zap.SugaredLogger

	connectMu sync.Mutex
}

func NewMQTTPublisher(broker, clientID, topicPrefix string, qos int) (*MQTTPublisher, error) {
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("mqtt qos %d not in [0, 2]", qos)
	}
	log := logger.L().With("component", "mqtt", "broker", broker)

	opts := mqtt.NewClientOptions().AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("MQTT connection lost", "error", err)
	})

	return &MQTTPublisher{
		client:      mqtt.NewClient(opts),
		topicPrefix: topicPrefix,
		qos:         byte(qos),
		log:         log,
	}, nil
}

// Topic is the topic a dump from source is published to.
func (p *MQTTPublisher) Topic(source string) string {
	if p.topicPrefix == "" {
		return source
	}
	return p.topicPrefix + "/" + source
}

func (p *MQTTPublisher) ensureConnected() error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	if p.client.IsConnected() {
		return nil
	}
	token := p.client.Connect()
	if !token.WaitTimeout(2 * mqttConnectTimeout) {
		return fmt.Errorf("%w: connect timed out", ErrNotConnected)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	p.log.Infow("Connected to MQTT broker")
	return nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, source string, payload []byte) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}

	token := p.client.Publish(p.Topic(source), p.qos, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p.client.IsConnectionOpen() {
		p.client.Disconnect(250)
	}
	return nil
}
