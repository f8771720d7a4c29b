// client.go: paho based implementation of Client.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/observability/metrics"
	"github.com/tphakala/voicechanger/internal/privacy"
)

// client implements the Client interface.
type client struct {
	config          Config
	log             logger.Logger
	metrics         *metrics.MQTTMetrics
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex

	subsMu        sync.Mutex
	subscriptions map[string]MessageHandler
	onConnect     []OnConnectHandler
}

// NewClient creates a new MQTT client with the provided configuration.
// m may be nil.
func NewClient(config Config, m *metrics.MQTTMetrics) (Client, error) {
	if config.Broker == "" {
		return nil, errors.Newf("MQTT broker is required").
			Component(componentMQTT).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &client{
		config:        config,
		log:           GetLogger(),
		metrics:       m,
		subscriptions: make(map[string]MessageHandler),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnect).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return c.connectError(err, "parse_broker")
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return c.connectError(err, "resolve_host")
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectInterval)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleConnectionLost)
	if c.config.WillTopic != "" {
		opts.SetWill(c.config.WillTopic, c.config.WillPayload, 1, true)
	}

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return c.connectError(errors.NewStd("connection timeout"), "connect")
	}
	if err := token.Error(); err != nil {
		return c.connectError(err, "connect")
	}
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, c.config.Retain)
}

// PublishWithRetain sends a message with an explicit retain flag.
func (c *client) PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return c.publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	if c.metrics != nil {
		timer := c.metrics.StartPublishTimer()
		defer timer.ObserveDuration()
	}

	token := c.internalClient.Publish(topic, 1, retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return c.publishError(errors.NewStd("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return c.publishError(err, topic)
	}
	c.log.Debug("published", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

// Subscribe registers handler for topic and subscribes immediately when connected.
func (c *client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	c.subsMu.Lock()
	c.subscriptions[topic] = handler
	c.subsMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(ctx, topic, handler)
}

func (c *client) subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := c.internalClient.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return c.subscribeError(errors.NewStd("subscribe timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return c.subscribeError(err, topic)
	}
	c.log.Debug("subscribed", logger.String("topic", topic))
	return nil
}

// RegisterOnConnectHandler adds a handler run after each connection.
func (c *client) RegisterOnConnectHandler(handler OnConnectHandler) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.onConnect = append(c.onConnect, handler)
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

// handleConnect restores subscriptions and runs connect handlers.
// paho calls it on its own goroutine, so blocking calls are fine here.
func (c *client) handleConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}

	c.subsMu.Lock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, h := range c.subscriptions {
		subs[topic] = h
	}
	handlers := append([]OnConnectHandler(nil), c.onConnect...)
	c.subsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	for topic, h := range subs {
		if err := c.subscribe(ctx, topic, h); err != nil {
			c.log.Warn("failed to restore subscription", logger.String("topic", topic), logger.Error(err))
		}
	}
	for _, h := range handlers {
		h()
	}
}

func (c *client) handleConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.RecordError("connection_lost")
	}
}

func (c *client) connectError(err error, operation string) error {
	if c.metrics != nil {
		c.metrics.RecordError("connect")
	}
	return errors.New(err).
		Component(componentMQTT).
		Category(errors.CategoryMQTTConnect).
		Context("operation", operation).
		Context("broker", privacy.SanitizeBrokerURL(c.config.Broker)).
		Build()
}

func (c *client) publishError(err error, topic string) error {
	if c.metrics != nil {
		c.metrics.RecordError("publish")
	}
	return errors.New(err).
		Component(componentMQTT).
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}

func (c *client) subscribeError(err error, topic string) error {
	if c.metrics != nil {
		c.metrics.RecordError("subscribe")
	}
	return errors.New(err).
		Component(componentMQTT).
		Category(errors.CategoryMQTTConnect).
		Context("operation", "subscribe").
		Context("topic", topic).
		Build()
}

// waitToken waits for token until timeout or ctx is done
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
