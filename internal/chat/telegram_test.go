package chat_test

import (
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/studymatehub/studymate-bot/internal/chat"
)

func TestSplitMessage(t *testing.T) {
	roadmapText := "Machine Learning\n1. Linear Regression\n2. Decision Trees - locked\n3. Neural Networks - locked"

	tests := []struct {
		name      string
		text      string
		maxLen    int
		wantParts []string
	}{
		{"empty", "", 4096, nil},
		{"fits", "Quiz finished: 4/5", 4096, []string{"Quiz finished: 4/5"}},
		{"exact length", "Hello", 5, []string{"Hello"}},
		{"prefers newlines", roadmapText, 40, []string{
			"Machine Learning\n1. Linear Regression\n",
			"2. Decision Trees - locked\n",
			"3. Neural Networks - locked",
		}},
		{"falls back to spaces", "one two three four", 9, []string{"one two ", "three ", "four"}},
		{"hard cut without breaks", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps runes whole", "ééééé", 2, []string{"éé", "éé", "é"}},
		{"counts utf-16 units", "😀😀😀", 3, []string{"😀", "😀", "😀"}},
		{"mixed script with spaces", "привет мир", 8, []string{"привет ", "мир"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chat.SplitMessage(tt.text, tt.maxLen)
			if len(got) != len(tt.wantParts) {
				t.Fatalf("SplitMessage() = %q, want %q", got, tt.wantParts)
			}
			for i := range got {
				if got[i] != tt.wantParts[i] {
					t.Errorf("part[%d] = %q, want %q", i, got[i], tt.wantParts[i])
				}
			}
		})
	}
}

func TestSplitMessage_Lossless(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("Resources:\n1. [video] Intro to channels (Go Channel)\n   https://example.com/watch?v=abc\n")
	}
	text := b.String()

	parts := chat.SplitMessage(text, 4096)
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	for i, p := range parts {
		if len(p) > 4096 {
			t.Errorf("part[%d] len = %d exceeds 4096", i, len(p))
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("joined parts differ from the original text")
	}
}

func TestSplitMessage_ValidUTF8(t *testing.T) {
	text := strings.Repeat("Модель 🤖 учится", 400)
	parts := chat.SplitMessage(text, 4096)
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	for i, p := range parts {
		if !utf8.ValidString(p) {
			t.Errorf("part[%d] is not valid UTF-8", i)
		}
		if n := len(utf16.Encode([]rune(p))); n > 4096 {
			t.Errorf("part[%d] is %d UTF-16 units, over 4096", i, n)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("joined parts differ from the original text")
	}
}

func TestNewTelegramChannel(t *testing.T) {
	if _, err := chat.NewTelegramChannel(""); err == nil || !strings.Contains(err.Error(), "STUDYMATE_TELEGRAM_BOT_TOKEN") {
		t.Errorf("NewTelegramChannel(\"\") error = %v, want it to name the env var", err)
	}

	ch, err := chat.NewTelegramChannel("123:abc")
	if err != nil {
		t.Fatalf("NewTelegramChannel() error = %v", err)
	}
	var _ chat.Channel = ch
}
