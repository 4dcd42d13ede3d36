package transport

import (
	"context"
	"sync"
)

// Message is one inbound chat message. Sender is a chain address, or empty
// when the transport cannot resolve one.
type Message struct {
	Text           string `json:"text"`
	Sender         string `json:"sender"`
	ConversationID string `json:"conversation_id"`
}

// Transport delivers inbound messages and sends replies. Within one
// conversation, Messages preserves delivery order.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Messages() <-chan Message
	Send(ctx context.Context, conversationID, text string) error
	Close() error
}

// inbox is the inbound queue shared by the adapters. Delivery after close is
// dropped rather than panicking on a closed channel.
type inbox struct {
	mu     sync.RWMutex
	ch     chan Message
	done   chan struct{}
	closed bool
	once   sync.Once
}

func newInbox(size int) *inbox {
	return &inbox{ch: make(chan Message, size), done: make(chan struct{})}
}

func (b *inbox) deliver(ctx context.Context, msg Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- msg:
		return true
	case <-b.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *inbox) close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}
