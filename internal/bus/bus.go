// Package bus provides decoupled many-to-many delivery of canonical
// messages between platform adapters, with loop avoidance: the sender
// never receives its own message.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// SubscriberQueueSize bounds each subscriber's undelivered backlog. On
// overflow the oldest message for that subscriber is dropped.
const SubscriberQueueSize = 32

// Recorder persists published messages in the correlation store. The bus
// assigns each published form a bridge id through it before fan-out.
type Recorder interface {
	Save(form bridge.SendForm) (string, error)
}

// Bus owns the registry of named adapter clients.
type Bus struct {
	recorder Recorder

	mu      sync.Mutex
	clients map[string]*Client
}

func New(recorder Recorder) *Bus {
	return &Bus{
		recorder: recorder,
		clients:  make(map[string]*Client),
	}
}

// Register creates a subscription for a named adapter. Names must be
// unique; a duplicate registration is a configuration fault.
func (b *Bus) Register(name string) (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.clients[name]; exists {
		return nil, fmt.Errorf("bus: client %q already registered", name)
	}
	c := &Client{
		name: name,
		bus:  b,
		in:   make(chan bridge.Message, SubscriberQueueSize),
	}
	b.clients[name] = c
	return c, nil
}

// publish fans a message out to every client except the named sender.
// The registry lock is held only long enough to snapshot the peer set.
func (b *Bus) publish(from string, msg bridge.Message) {
	b.mu.Lock()
	peers := make([]*Client, 0, len(b.clients))
	for name, c := range b.clients {
		if name != from {
			peers = append(peers, c)
		}
	}
	b.mu.Unlock()

	for _, peer := range peers {
		peer.deliver(msg)
	}
}

// Client is one adapter's handle on the bus. It holds only its name and
// receive queue; the bus owns the registry.
type Client struct {
	name string
	bus  *Bus
	in   chan bridge.Message
}

func (c *Client) Name() string { return c.name }

// Send records the form in the correlation store, then fans a copy out to
// every other registered client. Returns the assigned bridge-message id.
func (c *Client) Send(form bridge.SendForm) (string, error) {
	id, err := c.bus.recorder.Save(form)
	if err != nil {
		return "", fmt.Errorf("bus: record message: %w", err)
	}
	msg := bridge.Message{
		ID:        id,
		SenderID:  form.SenderID,
		AvatarURL: form.AvatarURL,
		Config:    form.Config,
		Chain:     form.Chain,
	}
	c.bus.publish(c.name, msg)
	return id, nil
}

// Recv returns the subscription stream of messages destined for this
// adapter. Subscribers must tolerate gaps: overflow drops oldest first.
func (c *Client) Recv() <-chan bridge.Message { return c.in }

// deliver enqueues without blocking the publisher. When the subscriber's
// queue is full the oldest undelivered message is dropped.
func (c *Client) deliver(msg bridge.Message) {
	for {
		select {
		case c.in <- msg:
			return
		default:
		}
		select {
		case dropped := <-c.in:
			slog.Warn("bus subscriber overflow, dropping oldest",
				"subscriber", c.name,
				"dropped_id", dropped.ID,
			)
		default:
		}
	}
}
