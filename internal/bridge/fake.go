package bridge

import "sync"

// Published is one message recorded by FakeTransport.
type Published struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeTransport records publishes and lets tests deliver inbound messages.
type FakeTransport struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler

	// Messages contains everything published, in order.
	Messages []Published

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string]MessageHandler)}
}

func (f *FakeTransport) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, Published{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (f *FakeTransport) Subscribe(topic string, h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Deliver hands payload to the handler subscribed to topic. It reports
// whether one existed.
func (f *FakeTransport) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h(topic, payload)
	}
	return ok
}

// Last returns the most recent message published to topic.
func (f *FakeTransport) Last(topic string) (Published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Messages) - 1; i >= 0; i-- {
		if f.Messages[i].Topic == topic {
			return f.Messages[i], true
		}
	}
	return Published{}, false
}

func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = nil
}
