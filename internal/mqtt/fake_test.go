package mqtt

import (
	"context"
	"sync"
)

type publishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

// fakeClient records publishes and lets tests deliver messages
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	published  []publishedMessage
	handlers   map[string]MessageHandler
	onConnect  []OnConnectHandler
	disconnect int
}

var _ Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]MessageHandler)}
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	f.connected = true
	handlers := append([]OnConnectHandler(nil), f.onConnect...)
	f.mu.Unlock()

	for _, h := range handlers {
		h()
	}
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic, payload string) error {
	return f.PublishWithRetain(ctx, topic, payload, true)
}

func (f *fakeClient) PublishWithRetain(_ context.Context, topic, payload string, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic, payload, retain})
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) RegisterOnConnectHandler(h OnConnectHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = append(f.onConnect, h)
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnect++
}

// deliver simulates an inbound message; it returns false without a subscription
func (f *fakeClient) deliver(topic, payload string) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, []byte(payload))
	return true
}

func (f *fakeClient) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

func (f *fakeClient) lastOn(topic string) (publishedMessage, bool) {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Topic == topic {
			return msgs[i], true
		}
	}
	return publishedMessage{}, false
}

func (f *fakeClient) hasSubscription(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}
