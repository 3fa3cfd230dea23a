package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	wsReadLimit    = 8 << 10
	wsWriteTimeout = 10 * time.Second
)

// wsInbound is a frame sent by a web client.
type wsInbound struct {
	Type      string `json:"type"` // "message"
	Text      string `json:"text"`
	FirstName string `json:"first_name,omitempty"`
	Language  string `json:"language,omitempty"`
}

// wsOutbound is a frame sent to a web client.
type wsOutbound struct {
	Type string `json:"type"` // "message" or "typing"
	Text string `json:"text,omitempty"`
}

// WebSocketChannel serves browser clients. Each client identifies itself with
// a client_id query parameter (a UUID it keeps in local storage); every open
// tab of that client receives the replies.
type WebSocketChannel struct {
	originPatterns []string

	mu      sync.RWMutex
	conns   map[string]map[*websocket.Conn]struct{}
	handler func(InboundMessage)
}

// NewWebSocketChannel creates a channel accepting the given origin patterns.
func NewWebSocketChannel(originPatterns []string) *WebSocketChannel {
	return &WebSocketChannel{
		originPatterns: originPatterns,
		conns:          make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Start records the handler. Connections arrive through ServeHTTP.
func (c *WebSocketChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()
	return nil
}

// Stop closes every open connection.
func (c *WebSocketChannel) Stop() error {
	c.mu.Lock()
	var open []*websocket.Conn
	for id, set := range c.conns {
		for conn := range set {
			open = append(open, conn)
		}
		delete(c.conns, id)
	}
	c.mu.Unlock()

	for _, conn := range open {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

func (c *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	return c.broadcast(ctx, userID, wsOutbound{Type: "message", Text: msg.Text})
}

func (c *WebSocketChannel) SendTyping(ctx context.Context, userID string) error {
	return c.broadcast(ctx, userID, wsOutbound{Type: "typing"})
}

func (c *WebSocketChannel) broadcast(ctx context.Context, userID string, frame wsOutbound) error {
	c.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(c.conns[userID]))
	for conn := range c.conns[userID] {
		targets = append(targets, conn)
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("websocket %s: %w", userID, ErrNotConnected)
	}

	var errs []error
	for _, conn := range targets {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		if err := wsjson.Write(wctx, conn, frame); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	// One live tab is enough.
	if len(errs) == len(targets) {
		return fmt.Errorf("websocket write: %w", errors.Join(errs...))
	}
	return nil
}

// Connected reports how many connections a client has open.
func (c *WebSocketChannel) Connected(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns[userID])
}

func (c *WebSocketChannel) add(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[userID] == nil {
		c.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	c.conns[userID][conn] = struct{}{}
}

func (c *WebSocketChannel) remove(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns[userID], conn)
	if len(c.conns[userID]) == 0 {
		delete(c.conns, userID)
	}
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
func (c *WebSocketChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if _, err := uuid.Parse(clientID); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "client_id must be a UUID"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	c.add(clientID, conn)
	defer func() {
		c.remove(clientID, conn)
		_ = conn.CloseNow()
	}()
	slog.Info("websocket client connected", "client_id", clientID)

	ctx := r.Context()
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				slog.Info("websocket client disconnected", "client_id", clientID)
			default:
				slog.Debug("websocket read ended", "client_id", clientID, "error", err)
			}
			return
		}
		if in.Type != "" && in.Type != "message" {
			continue
		}
		if in.Text == "" {
			continue
		}

		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()
		if handler == nil {
			_ = wsjson.Write(ctx, conn, wsOutbound{Type: "message", Text: "The bot is starting up, try again in a moment."})
			continue
		}
		handler(InboundMessage{
			Channel:    "websocket",
			UserID:     clientID,
			ExternalID: clientID,
			Text:       in.Text,
			FirstName:  in.FirstName,
			Language:   in.Language,
		})
	}
}
