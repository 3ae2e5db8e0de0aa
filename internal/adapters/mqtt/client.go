// Package mqtt connects sessions to an MQTT broker: display updates are
// published as retained messages and frames can be consumed from topics.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/posemon/pkg/logger"
)

const (
	defaultConnectTimeout   = 5 * time.Second
	defaultOperationTimeout = 2 * time.Second
	disconnectQuiesceMS     = 250
)

// Handler receives the payload of a message on topic.
type Handler func(ctx context.Context, topic string, payload []byte)

type subscription struct {
	qos     byte
	handler Handler
}

// Client is a reconnecting MQTT connection.
type Client struct {
	broker         string
	clientID       string
	username       string
	password       string
	connectTimeout time.Duration
	opTimeout      time.Duration

	cli       paho.Client
	connected atomic.Bool

	mu   sync.Mutex
	subs map[string]subscription

	logger logger.Logger
}

// NewClient creates a client for broker, e.g. "tcp://localhost:1883".
func NewClient(broker, clientID string, opts ...Option) *Client {
	c := &Client{
		broker:         broker,
		clientID:       clientID,
		connectTimeout: defaultConnectTimeout,
		opTimeout:      defaultOperationTimeout,
		subs:           make(map[string]subscription),
		logger:         logger.Get().Named("mqtt"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection. Subscriptions are restored on every
// reconnect.
func (c *Client) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.clientID)
	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(pc paho.Client) {
		c.connected.Store(true)
		c.logger.Info(ctx, "mqtt connection established",
			logger.String("broker", c.broker),
			logger.String("client_id", c.clientID),
		)
		c.resubscribe(ctx, pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.connected.Store(false)
		c.logger.Warn(ctx, "mqtt connection lost, will auto-reconnect",
			logger.String("broker", c.broker),
			logger.Error(err),
		)
	}

	c.cli = paho.NewClient(opts)
	c.logger.Info(ctx, "connecting to mqtt broker", logger.String("broker", c.broker))

	token := c.cli.Connect()
	if !c.wait(ctx, token, c.connectTimeout) {
		return fmt.Errorf("connect %s: %w", c.broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", c.broker, err)
	}
	c.connected.Store(true)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Publish sends payload to topic and waits for the broker acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if c.cli == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.cli.Publish(topic, qos, retained, payload)
	if !c.wait(ctx, token, c.opTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for filter. Messages are delivered on the
// client's router goroutine in arrival order.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler Handler) error {
	if c.cli == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return c.subscribe(ctx, c.cli, filter, subscription{qos: qos, handler: handler})
}

func (c *Client) subscribe(ctx context.Context, pc paho.Client, filter string, sub subscription) error {
	token := pc.Subscribe(filter, sub.qos, func(_ paho.Client, msg paho.Message) {
		sub.handler(ctx, msg.Topic(), msg.Payload())
	})
	if !c.wait(ctx, token, c.opTimeout) {
		return fmt.Errorf("subscribe %s: %w", filter, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (c *Client) resubscribe(ctx context.Context, pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	c.mu.Unlock()

	// Tokens cannot be awaited inside OnConnect.
	for filter, sub := range subs {
		go func(filter string, sub subscription) {
			if err := c.subscribe(ctx, pc, filter, sub); err != nil {
				c.logger.Error(ctx, "resubscribe failed", logger.String("filter", filter), logger.Error(err))
			}
		}(filter, sub)
	}
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(disconnectQuiesceMS)
	}
	c.connected.Store(false)
}

// wait blocks until token completes, ctx ends or timeout passes.
func (c *Client) wait(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}
