package mqtt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/natsfixture/internal/infrastructure/config"
)

// Client publishes fixture lifecycle notifications over MQTT.
//
// Besides plain publish/subscribe it keeps two pieces of fixture state on
// the broker consistent:
//   - the fixture status topic, online while connected and offline after
//     Close or (through the will) after a crash;
//   - the retained instance status topics it wrote, which are cleared on a
//     graceful Close so late subscribers do not see instances of a fixture
//     that no longer exists.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	broker string

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	retainedMu sync.Mutex
	retained   map[string]struct{}

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger used by the client.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message. Handlers run on paho's
// goroutines and should return quickly. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and returns once the session is up, ctx is done
// or the connect timeout elapses. The fixture status topic carries a
// retained offline will and is set online on every (re)connect.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	timeout, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	select {
	case <-token.Done():
	case <-timeout.Done():
		c.client.Disconnect(0)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.broker, err)
		}
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, c.broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.broker, err)
	}

	// The connect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		broker:        brokerURL(cfg.Broker),
		subscriptions: make(map[string]subscription),
		retained:      make(map[string]struct{}),
	}
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.client.Publish(Topics{}.FixtureStatus(c.cfg.Broker.ClientID), c.QoS(), true,
		statusPayload("online", c.cfg.Broker.ClientID, ""))

	c.hooksMu.RLock()
	callback := c.onConnect
	c.hooksMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	c.warn("MQTT connection lost", "broker", c.broker, "error", err)

	c.hooksMu.RLock()
	callback := c.onDisconnect
	c.hooksMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes after a reconnect. It runs on paho's
// callback goroutine, so it does not wait for acknowledgements.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for topic, sub := range c.subscriptions {
		token := c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
				c.warn("MQTT resubscribe failed", "topic", topic, "error", token.Error())
			}
		}(topic)
	}
}

// trackRetained remembers retained instance topics so Close can clear them.
// An empty retained payload clears the topic on the broker and is forgotten.
func (c *Client) trackRetained(topic string, payload []byte) {
	if !strings.HasPrefix(topic, TopicPrefix+"/instance/") {
		return
	}
	c.retainedMu.Lock()
	defer c.retainedMu.Unlock()
	if len(payload) == 0 {
		delete(c.retained, topic)
		return
	}
	c.retained[topic] = struct{}{}
}

// RetainedTopics returns the retained instance topics this client wrote
// and has not cleared, sorted.
func (c *Client) RetainedTopics() []string {
	c.retainedMu.Lock()
	defer c.retainedMu.Unlock()
	out := make([]string, 0, len(c.retained))
	for t := range c.retained {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close clears the retained instance topics, publishes a graceful offline
// status and disconnects. Publish failures during Close are logged.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		for _, topic := range c.RetainedTopics() {
			if err := c.Publish(topic, nil, c.QoS(), true); err != nil {
				c.warn("failed to clear retained status", "topic", topic, "error", err)
			}
		}
		token := c.client.Publish(Topics{}.FixtureStatus(c.cfg.Broker.ClientID), c.QoS(), true,
			statusPayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown"))
		if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
			c.warn("failed to publish offline status", "broker", c.broker, "error", token.Error())
		}
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, c.broker)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for handler failures and connection loss.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) warn(msg string, args ...any) {
	c.hooksMu.RLock()
	logger := c.logger
	c.hooksMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// wrapHandler adds panic recovery and error logging to handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.hooksMu.RLock()
				logger := c.logger
				c.hooksMu.RUnlock()
				if logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
