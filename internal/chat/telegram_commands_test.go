package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTelegramChannelSyncCommands(t *testing.T) {
	var gotPath string
	var gotCommands string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotCommands = r.Form.Get("commands")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer server.Close()

	ch := &TelegramChannel{
		token:   "test-token",
		baseURL: server.URL,
		client:  server.Client(),
		stop:    make(chan struct{}),
	}

	if err := ch.syncCommands(context.Background()); err != nil {
		t.Fatalf("syncCommands() error = %v", err)
	}
	if gotPath != "/setMyCommands" {
		t.Fatalf("path = %q, want /setMyCommands", gotPath)
	}
	if gotCommands == "" {
		t.Fatal("commands payload is empty")
	}
	if !strings.Contains(gotCommands, `"learn"`) || !strings.Contains(gotCommands, `"login"`) {
		t.Fatalf("commands payload = %q, expected learn and login", gotCommands)
	}
}

func TestTelegramChannelSyncCommands_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{})}
	if err := ch.syncCommands(context.Background()); err == nil {
		t.Fatal("syncCommands() should fail on a non-200 reply")
	}
}

func TestTelegramChannelSendMessage_SplitsAndRetriesPlain(t *testing.T) {
	var texts []string
	var modes []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		texts = append(texts, r.Form.Get("text"))
		modes = append(modes, r.Form.Get("parse_mode"))
		if r.Form.Get("parse_mode") != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{})}
	long := strings.Repeat("word ", telegramMaxMessageLen/5+10)

	err := ch.SendMessage(context.Background(), "123", OutboundMessage{Text: long, ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	// Two parts, each tried with Markdown then plain.
	if len(texts) != 4 {
		t.Fatalf("requests = %d, want 4", len(texts))
	}
	if modes[0] != "Markdown" || modes[1] != "" {
		t.Errorf("parse modes = %v", modes)
	}
}

func TestTelegramChannelStop_Idempotent(t *testing.T) {
	ch, err := NewTelegramChannel("test-token")
	if err != nil {
		t.Fatal(err)
	}
	_ = ch.Stop()
	if err := ch.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestDecodeTelegram(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantRetry  time.Duration
		wantResult bool
	}{
		{name: "ok result", status: 200, body: `{"ok":true,"result":true}`, wantResult: true},
		{name: "ok without body", status: 200, body: ""},
		{name: "ok false", status: 200, body: `{"ok":false,"description":"chat not found"}`, wantErr: true},
		{name: "flood wait", status: 429, body: `{"ok":false,"description":"Too Many Requests","parameters":{"retry_after":3}}`, wantErr: true, wantRetry: 3 * time.Second},
		{name: "bare status", status: 502, body: "<html>bad gateway</html>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result bool
			var out any
			if tt.wantResult {
				out = &result
			}
			err := decodeTelegram(tt.status, []byte(tt.body), out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeTelegram() error = %v, wantErr %v", err, tt.wantErr)
			}
			var apiErr *tgAPIError
			if tt.wantErr && (!errors.As(err, &apiErr) || apiErr.RetryAfter != tt.wantRetry) {
				t.Errorf("error = %#v, want retry after %v", err, tt.wantRetry)
			}
			if tt.wantResult && !result {
				t.Error("result should decode to true")
			}
		})
	}
}

func TestTelegramChannelSendMessage_FloodWait(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Too Many Requests","parameters":{"retry_after":0}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{})}
	if err := ch.SendMessage(context.Background(), "123", OutboundMessage{Text: "Step 2 is unlocked."}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2", calls)
	}
}

func TestTelegramChannelGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if r.URL.Path != "/getUpdates" || r.Form.Get("offset") != "7" {
			t.Errorf("request = %s offset=%s", r.URL.Path, r.Form.Get("offset"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":"/learn go","chat":{"id":99},"from":{"id":5,"first_name":"Mei"}}}]}`))
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{}), offset: 7}
	updates, err := ch.getUpdates(context.Background())
	if err != nil {
		t.Fatalf("getUpdates() error = %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("len(updates) = %d, want 1", len(updates))
	}
	msg, ok := mapTelegramInbound(updates[0])
	if !ok || msg.UserID != "99" || msg.ExternalID != "5" || msg.Text != "/learn go" {
		t.Errorf("mapped = %+v", msg)
	}
}
