// mqtt.go: Package mqtt bridges the voice changer session to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/logger"
)

const componentMQTT = "mqtt"

// MessageHandler is called for every message received on a subscribed topic.
// It runs on the client's network goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// OnConnectHandler is called after every successful (re)connection.
type OnConnectHandler func()

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic using the configured retain flag.
	Publish(ctx context.Context, topic string, payload string) error

	// PublishWithRetain sends a message with an explicit retain flag.
	PublishWithRetain(ctx context.Context, topic string, payload string, retain bool) error

	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// RegisterOnConnectHandler adds a handler run after each connection.
	RegisterOnConnectHandler(handler OnConnectHandler)

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // Base topic, state is published to <Topic>/state
	Retain   bool   // true to retain state messages at the broker

	// WillTopic receives WillPayload when the connection drops uncleanly
	WillTopic   string
	WillPayload string

	ReconnectCooldown    time.Duration
	MaxReconnectInterval time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:                conf.DefaultMQTTTopic,
		Retain:               true,
		ReconnectCooldown:    5 * time.Second,
		MaxReconnectInterval: 2 * time.Minute,
		ConnectTimeout:       30 * time.Second,
		PublishTimeout:       10 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a client Config from the application settings.
// An empty client ID gets a random one so several instances can share a broker.
func ConfigFromSettings(settings *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = "voicechanger-" + uuid.NewString()[:8]
	}
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	if settings.Topic != "" {
		cfg.Topic = settings.Topic
	}
	cfg.Retain = settings.Retain
	cfg.WillTopic = AvailabilityTopic(cfg.Topic)
	cfg.WillPayload = PayloadOffline
	return cfg
}

// GetLogger returns the mqtt package logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentMQTT)
}
