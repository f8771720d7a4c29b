package mqtt

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/observability/metrics"
)

// Command results recorded beside the metrics package statuses
const (
	statusRateLimited = "rate_limited"
	commandUnparsed   = "unparsed"
	commandInvalid    = "invalid"
)

// Controller is the controller surface driven by the bridge
type Controller interface {
	State() controller.State
	PitchRange() (minPitch, maxPitch float32)
	OnStartRequested()
	OnStopRequested()
	OnPitchSliderChanged(v float32)
	OnStateChange(fn func(controller.State))
}

// BridgeOption configures a Bridge
type BridgeOption func(*Bridge)

// WithCommandRate limits inbound commands to perSecond with a burst of the same size.
// Zero or negative disables the limit.
func WithCommandRate(perSecond float64) BridgeOption {
	return func(b *Bridge) {
		if perSecond <= 0 {
			b.limiter = nil
			return
		}
		burst := max(int(perSecond), 1)
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBridgeMetrics records command outcomes
func WithBridgeMetrics(m *metrics.MQTTMetrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithDiscovery publishes Home Assistant discovery on every connection
func WithDiscovery(p *Publisher) BridgeOption {
	return func(b *Bridge) {
		b.discovery = p
	}
}

// WithBridgeLogger sets the bridge logger
func WithBridgeLogger(l logger.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// Bridge publishes controller state and turns inbound commands into intents
type Bridge struct {
	client    Client
	ctrl      Controller
	topic     string
	limiter   *rate.Limiter
	metrics   *metrics.MQTTMetrics
	discovery *Publisher
	log       logger.Logger

	// latest state waiting to be published, newer states replace older ones
	updates chan controller.State
	// connected signals a (re)connection so the loop republishes everything
	connected chan struct{}
}

// NewBridge creates a bridge publishing under topic
func NewBridge(client Client, ctrl Controller, topic string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		client:    client,
		ctrl:      ctrl,
		topic:     topic,
		log:       GetLogger(),
		updates:   make(chan controller.State, 1),
		connected: make(chan struct{}, 1),
	}
	WithCommandRate(5)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run connects, subscribes to the command topic and publishes state changes
// until ctx is canceled. A failed initial connection is retried in the
// background and does not end Run.
func (b *Bridge) Run(ctx context.Context) error {
	b.client.RegisterOnConnectHandler(b.onConnect)
	b.ctrl.OnStateChange(b.notify)

	if err := b.client.Subscribe(ctx, CommandTopic(b.topic), b.handleCommand); err != nil {
		return err
	}
	if err := b.client.Connect(ctx); err != nil {
		b.log.Warn("MQTT connection failed, retrying in background", logger.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-b.connected:
			b.publishAll(ctx)
		case state := <-b.updates:
			b.publishState(ctx, state)
		}
	}
}

func (b *Bridge) onConnect() {
	select {
	case b.connected <- struct{}{}:
	default:
	}
}

// notify queues state for publishing without blocking the controller
func (b *Bridge) notify(state controller.State) {
	for {
		select {
		case b.updates <- state:
			return
		default:
		}
		select {
		case <-b.updates:
		default:
		}
	}
}

func (b *Bridge) publishAll(ctx context.Context) {
	if err := b.client.PublishWithRetain(ctx, AvailabilityTopic(b.topic), PayloadOnline, true); err != nil {
		b.log.Warn("failed to publish availability", logger.Error(err))
	}
	if b.discovery != nil {
		if err := b.discovery.PublishDiscovery(ctx); err != nil {
			b.log.Warn("failed to publish discovery", logger.Error(err))
		}
	}
	b.publishState(ctx, b.ctrl.State())
}

func (b *Bridge) publishState(ctx context.Context, state controller.State) {
	minPitch, maxPitch := b.ctrl.PitchRange()
	payload, err := NewStateDTO(state, minPitch, maxPitch).Marshal()
	if err != nil {
		b.log.Error("failed to marshal state", logger.Error(err))
		return
	}
	if err := b.client.Publish(ctx, StateTopic(b.topic), payload); err != nil {
		b.log.Warn("failed to publish state", logger.Error(err))
	}
}

// shutdown marks the bridge offline and disconnects
func (b *Bridge) shutdown() {
	if b.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.client.PublishWithRetain(ctx, AvailabilityTopic(b.topic), PayloadOffline, true); err != nil {
			b.log.Warn("failed to publish offline status", logger.Error(err))
		}
	}
	b.client.Disconnect()
}

// handleCommand runs on the client network goroutine; intents never block
func (b *Bridge) handleCommand(topic string, payload []byte) {
	if b.limiter != nil && !b.limiter.Allow() {
		b.log.Warn("MQTT command rate limit exceeded, dropping command", logger.String("topic", topic))
		b.recordCommand(commandUnparsed, statusRateLimited)
		return
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		b.log.Warn("invalid MQTT command", logger.String("topic", topic), logger.Error(err))
		b.recordCommand(commandInvalid, metrics.StatusError)
		return
	}

	switch cmd.Name {
	case CommandStart:
		b.ctrl.OnStartRequested()
	case CommandStop:
		b.ctrl.OnStopRequested()
	case CommandPitch:
		b.ctrl.OnPitchSliderChanged(cmd.Pitch)
	}
	b.log.Debug("MQTT command accepted", logger.String("command", cmd.Name))
	b.recordCommand(cmd.Name, metrics.StatusSuccess)
}

func (b *Bridge) recordCommand(command, status string) {
	if b.metrics != nil {
		b.metrics.RecordCommand(command, status)
	}
}
