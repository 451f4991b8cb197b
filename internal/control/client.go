package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout   = 5 * time.Second
	publishTimeout   = 2 * time.Second
	subscribeTimeout = 5 * time.Second
)

// Transport is the subset of an MQTT connection the handler and emitter use.
type Transport interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler func(payload []byte)) error
	Unsubscribe(topic string) error
}

// ClientStats contains connection statistics.
type ClientStats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Client is a paho MQTT connection with automatic reconnection.
type Client struct {
	broker   string
	clientID string
	client   mqtt.Client

	connected atomic.Bool
	errors    atomic.Uint64

	mu        sync.Mutex
	published map[string]uint64
}

// NewClient creates a client. broker is host:port or a full URL.
func NewClient(broker, clientID string) *Client {
	return &Client{
		broker:    broker,
		clientID:  clientID,
		published: make(map[string]uint64),
	}
}

// brokerURL adds the tcp:// scheme when missing.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the connection. paho keeps reconnecting afterwards.
func (c *Client) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(c.broker))
	opts.SetClientID(c.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		c.connected.Store(true)
		slog.Info("control: mqtt connection established",
			"broker", c.broker,
			"client_id", c.clientID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		slog.Warn("control: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", c.broker,
		)
	}

	c.client = mqtt.NewClient(opts)

	slog.Info("control: connecting to mqtt broker", "broker", c.broker)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("control: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: mqtt connection failed: %w", err)
	}

	c.connected.Store(true)
	return nil
}

// Publish sends payload and waits for the broker acknowledgement (QoS > 0).
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	if c.client == nil || !c.connected.Load() {
		c.errors.Add(1)
		return fmt.Errorf("control: mqtt not connected")
	}

	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.errors.Add(1)
		return fmt.Errorf("control: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("control: publish failed on %s: %w", topic, err)
	}

	c.mu.Lock()
	c.published[topic]++
	c.mu.Unlock()
	return nil
}

// Subscribe registers handler for topic.
func (c *Client) Subscribe(topic string, qos byte, handler func(payload []byte)) error {
	if c.client == nil {
		return fmt.Errorf("control: mqtt not connected")
	}

	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("control: subscription timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed on %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes the subscription on topic.
func (c *Client) Unsubscribe(topic string) error {
	if c.client == nil || !c.client.IsConnected() {
		return nil
	}
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("control: unsubscribe timeout on %s", topic)
	}
	return token.Error()
}

// Disconnect closes the connection with a 250ms grace period.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		slog.Info("control: mqtt disconnected")
	}
	c.connected.Store(false)
}

// Stats returns connection statistics.
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	published := make(map[string]uint64, len(c.published))
	for k, v := range c.published {
		published[k] = v
	}
	c.mu.Unlock()

	return ClientStats{
		Connected: c.connected.Load(),
		Published: published,
		Errors:    c.errors.Load(),
	}
}
