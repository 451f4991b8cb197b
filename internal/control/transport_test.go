package control

import (
	"sync"
	"testing"
	"time"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeTransport records publications and delivers messages to subscribers.
type fakeTransport struct {
	mu       sync.Mutex
	pubs     []published
	handlers map[string]func([]byte)
	pubCh    chan published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func([]byte)),
		pubCh:    make(chan published, 64),
	}
}

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte) error {
	p := published{topic: topic, qos: qos, payload: append([]byte(nil), payload...)}
	f.mu.Lock()
	f.pubs = append(f.pubs, p)
	f.mu.Unlock()
	select {
	case f.pubCh <- p:
	default:
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscriber on %s", topic)
	}
	h(payload)
}

func (f *fakeTransport) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-f.pubCh:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return published{}
	}
}
