package chat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/studymatehub/studymate-bot/internal/chat"
)

const testClientID = "2b7e1f3a-9c4d-4e5f-8a6b-1c2d3e4f5a6b"

type frame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func dialWS(t *testing.T, ctx context.Context, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=" + clientID
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestWebSocketChannel_EchoRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := chat.NewWebSocketChannel(nil)
	received := make(chan chat.InboundMessage, 1)
	if err := ch.Start(ctx, func(msg chat.InboundMessage) {
		received <- msg
		_ = ch.SendTyping(ctx, msg.UserID)
		_ = ch.SendMessage(ctx, msg.UserID, chat.OutboundMessage{Text: "echo: " + msg.Text})
	}); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", ch)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialWS(t, ctx, srv, testClientID)
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "message", "text": "/learn go", "first_name": "Ana"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	msg := <-received
	if msg.Channel != "websocket" || msg.UserID != testClientID || msg.Text != "/learn go" || msg.FirstName != "Ana" {
		t.Errorf("inbound = %+v", msg)
	}

	var typing, reply frame
	if err := wsjson.Read(ctx, conn, &typing); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if typing.Type != "typing" {
		t.Errorf("first frame = %+v, want typing", typing)
	}
	if reply.Type != "message" || reply.Text != "echo: /learn go" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestWebSocketChannel_RejectsBadClientID(t *testing.T) {
	ch := chat.NewWebSocketChannel(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws?client_id=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), `"error":"client_id must be a UUID"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebSocketChannel_SendWithoutConnection(t *testing.T) {
	ch := chat.NewWebSocketChannel(nil)
	err := ch.SendMessage(context.Background(), testClientID, chat.OutboundMessage{Text: "hi"})
	if !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
	}
}

func TestWebSocketChannel_StopClosesConnections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := chat.NewWebSocketChannel(nil)
	_ = ch.Start(ctx, func(chat.InboundMessage) {})
	srv := httptest.NewServer(ch)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?client_id=" + testClientID
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for ch.Connected(testClientID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ch.Connected(testClientID) != 1 {
		t.Fatalf("Connected() = %d, want 1", ch.Connected(testClientID))
	}

	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	var f frame
	err = wsjson.Read(ctx, conn, &f)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("Read() after Stop error = %v, want going away", err)
	}
}
