// Package chat connects learners to the tutor engine. A Gateway owns the
// registered transports (Telegram long polling, browser WebSocket) and
// routes each reply back over the transport its message came in on.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotConnected is returned when a learner has no open connection on a channel.
	ErrNotConnected = errors.New("user is not connected")
	// ErrUnknownChannel is returned for messages addressed to an unregistered channel.
	ErrUnknownChannel = errors.New("unknown channel")
)

// InboundMessage is one learner message, whichever transport carried it.
type InboundMessage struct {
	Channel    string
	UserID     string // where replies go: a Telegram chat id or a WebSocket client id
	ExternalID string // who sent it
	Text       string
	Username   string
	FirstName  string
	LastName   string
	Language   string
}

// OutboundMessage is a tutor reply.
type OutboundMessage struct {
	Channel   string
	UserID    string
	Text      string
	ParseMode string // "Markdown", "HTML", or ""
}

// Channel is a transport the tutor can talk through.
type Channel interface {
	SendMessage(ctx context.Context, userID string, msg OutboundMessage) error
	SendTyping(ctx context.Context, userID string) error
	Start(ctx context.Context, handler func(InboundMessage)) error
	Stop() error
}

// Gateway routes replies to the channel a learner wrote from.
type Gateway struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewGateway() *Gateway {
	return &Gateway{channels: map[string]Channel{}}
}

// Register adds or replaces the channel called name.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	g.channels[name] = ch
	g.mu.Unlock()
	slog.Info("chat channel registered", "channel", name)
}

func (g *Gateway) HasChannel(name string) bool {
	_, err := g.lookup(name)
	return err == nil
}

func (g *Gateway) lookup(name string) (Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Send delivers a reply on msg.Channel.
func (g *Gateway) Send(ctx context.Context, msg OutboundMessage) error {
	ch, err := g.lookup(msg.Channel)
	if err != nil {
		return err
	}
	return ch.SendMessage(ctx, msg.UserID, msg)
}

// SendTyping shows the learner that a reply is on its way.
func (g *Gateway) SendTyping(ctx context.Context, channel, userID string) error {
	ch, err := g.lookup(channel)
	if err != nil {
		return err
	}
	return ch.SendTyping(ctx, userID)
}

// StartAll starts every channel with handler and stops at the first failure.
func (g *Gateway) StartAll(ctx context.Context, handler func(InboundMessage)) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, ch := range g.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx, handler); err != nil {
			return fmt.Errorf("starting channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every channel, even after one fails.
func (g *Gateway) StopAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MockChannel is an in-memory Channel for tests. Deliver plays a learner
// message into the handler passed to Start.
type MockChannel struct {
	mu      sync.Mutex
	handler func(InboundMessage)
	sent    []OutboundMessage
	typing  int
	Stopped bool
}

func (m *MockChannel) SendMessage(_ context.Context, _ string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *MockChannel) SendTyping(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing++
	return nil
}

func (m *MockChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	return nil
}

func (m *MockChannel) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = true
	return nil
}

// Deliver hands msg to the started handler and reports whether there was one.
func (m *MockChannel) Deliver(msg InboundMessage) bool {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(msg)
	return true
}

// Sent returns a copy of the replies sent so far.
func (m *MockChannel) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.sent...)
}

// Typing returns how many typing indicators were sent.
func (m *MockChannel) Typing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}
