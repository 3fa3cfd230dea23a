package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	telegramMaxMessageLen = 4096
	telegramMaxBody       = 1 << 20
	// Longer flood waits are reported to the caller instead of blocking a reply.
	telegramMaxRetryAfter = 5 * time.Second
)

// telegramCommands is the menu shown by Telegram clients.
var telegramCommands = []tgCommand{
	{"start", "Welcome and popular topics"},
	{"learn", "Build a roadmap for a topic"},
	{"cram", "Short roadmap for last-minute revision"},
	{"map", "Show the current roadmap"},
	{"next", "Open the next unlocked step"},
	{"progress", "Completed steps"},
	{"diagnostic", "Quick check for the open step"},
	{"assess", "Full assessment for the open step"},
	{"submit", "Record a finished quiz"},
	{"exit", "Leave the current quiz"},
	{"save", "Save the current roadmap"},
	{"saved", "Your saved roadmaps and resources"},
	{"ask", "Ask the tutor about the open step"},
	{"leaderboard", "Top learners"},
	{"squad", "Your squad"},
	{"login", "Link your StudyMate account"},
	{"help", "All commands"},
}

// tgAPIError is a failed Bot API call.
type tgAPIError struct {
	Status      int
	Description string
	RetryAfter  time.Duration
}

func (e *tgAPIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram API error %d", e.Status)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.Status, e.Description)
}

// TelegramChannel implements Channel over the Bot API with long polling.
type TelegramChannel struct {
	token    string
	baseURL  string
	client   *http.Client
	offset   int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (STUDYMATE_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

// call POSTs a form to a Bot API method and decodes the result into out
// when out is non-nil.
func (t *TelegramChannel) call(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxBody))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	return decodeTelegram(resp.StatusCode, body, out)
}

// decodeTelegram unpacks the {"ok", "result", "description"} envelope.
func decodeTelegram(status int, body []byte, out any) error {
	var env struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
		Parameters  struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	decoded := len(body) > 0 && json.Unmarshal(body, &env) == nil

	if status != http.StatusOK || (decoded && !env.OK) {
		return &tgAPIError{
			Status:      status,
			Description: env.Description,
			RetryAfter:  time.Duration(env.Parameters.RetryAfter) * time.Second,
		}
	}
	if out == nil {
		return nil
	}
	if !decoded {
		return fmt.Errorf("telegram returned an unreadable body")
	}
	return json.Unmarshal(env.Result, out)
}

func (t *TelegramChannel) SendTyping(ctx context.Context, userID string) error {
	err := t.call(ctx, "sendChatAction", url.Values{
		"chat_id": {userID},
		"action":  {"typing"},
	}, nil)
	if err != nil {
		return fmt.Errorf("sending typing indicator: %w", err)
	}
	return nil
}

// SendMessage delivers text in chunks Telegram accepts. A chunk rejected for
// its markup is resent as plain text, and a short flood wait is honoured once.
func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	for i, part := range SplitMessage(msg.Text, telegramMaxMessageLen) {
		params := url.Values{
			"chat_id":                  {userID},
			"text":                     {part},
			"disable_web_page_preview": {"true"},
		}
		if msg.ParseMode != "" {
			params.Set("parse_mode", msg.ParseMode)
		}

		err := t.call(ctx, "sendMessage", params, nil)
		var apiErr *tgAPIError
		switch {
		case err == nil:
			continue
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && params.Has("parse_mode"):
			slog.Warn("Telegram markup rejected, resending plain", "description", apiErr.Description)
			params.Del("parse_mode")
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests && apiErr.RetryAfter <= telegramMaxRetryAfter:
			slog.Warn("Telegram flood wait", "retry_after", apiErr.RetryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(apiErr.RetryAfter):
			}
		default:
			return fmt.Errorf("sending Telegram message part %d: %w", i+1, err)
		}

		if err := t.call(ctx, "sendMessage", params, nil); err != nil {
			return fmt.Errorf("sending Telegram message part %d (retry): %w", i+1, err)
		}
	}
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if err := t.syncCommands(ctx); err != nil {
		slog.Warn("failed to register Telegram commands", "error", err)
	}
	go t.pollLoop(ctx, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

// syncCommands publishes the command menu.
func (t *TelegramChannel) syncCommands(ctx context.Context) error {
	payload, err := json.Marshal(telegramCommands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}
	if err := t.call(ctx, "setMyCommands", url.Values{"commands": {string(payload)}}, nil); err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		updates, err := t.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Telegram getUpdates error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			t.offset = u.UpdateID + 1
			if msg, ok := mapTelegramInbound(u); ok {
				go handler(msg)
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	var updates []tgUpdate
	err := t.call(ctx, "getUpdates", url.Values{
		"offset":          {strconv.Itoa(t.offset)},
		"timeout":         {"30"},
		"allowed_updates": {`["message"]`},
	}, &updates)
	return updates, err
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID int        `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	Text string `json:"text"`
	Chat tgChat `json:"chat"`
	From tgUser `json:"from"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

type tgCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// SplitMessage cuts text into chunks of at most maxLen UTF-16 code units,
// the unit Telegram counts in, preferring to break after a newline, then
// after a space. A chunk never ends inside a rune.
func SplitMessage(text string, maxLen int) []string {
	var parts []string
	for text != "" {
		end := utf16Prefix(text, maxLen)
		if end == len(text) {
			parts = append(parts, text)
			break
		}
		cut := end
		if i := strings.LastIndex(text[:end], "\n"); i > 0 {
			cut = i + 1
		} else if i := strings.LastIndex(text[:end], " "); i > 0 {
			cut = i + 1
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(text)
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return parts
}

// utf16Prefix returns the byte length of the longest prefix of s that fits
// in limit UTF-16 code units.
func utf16Prefix(s string, limit int) int {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return i
		}
		units += n
	}
	return len(s)
}

// mapTelegramInbound keeps text messages only; stickers, photos and service
// messages are dropped.
func mapTelegramInbound(u tgUpdate) (InboundMessage, bool) {
	if u.Message == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Channel:    "telegram",
		UserID:     strconv.FormatInt(u.Message.Chat.ID, 10),
		ExternalID: strconv.FormatInt(u.Message.From.ID, 10),
		Text:       text,
		Username:   u.Message.From.Username,
		FirstName:  u.Message.From.FirstName,
		LastName:   u.Message.From.LastName,
		Language:   u.Message.From.LanguageCode,
	}, true
}
