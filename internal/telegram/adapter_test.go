package telegram

import (
	"strings"
	"testing"

	"github.com/user/telerpg/internal/types"
)

func TestSplitMessageShort(t *testing.T) {
	parts := splitMessage("hello")
	if len(parts) != 1 || parts[0] != "hello" {
		t.Errorf("expected single part, got %v", parts)
	}
}

func TestSplitMessageLong(t *testing.T) {
	text := strings.Repeat("a", maxTelegramMessage+100)
	parts := splitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part at limit, got %d", len(parts[0]))
	}
	if len(parts[1]) != 100 {
		t.Errorf("expected second part of 100, got %d", len(parts[1]))
	}
}

func TestSubjectRoundTrip(t *testing.T) {
	subject := buildSubject(42)
	if subject != "telegram:42" {
		t.Errorf("expected telegram:42, got %s", subject)
	}
	chatID, err := parseSubject(subject)
	if err != nil {
		t.Fatalf("parseSubject failed: %v", err)
	}
	if chatID != 42 {
		t.Errorf("expected 42, got %d", chatID)
	}
}

func TestParseSubjectRejectsOtherPrefix(t *testing.T) {
	if _, err := parseSubject("discord:1"); err == nil {
		t.Error("expected error for non-telegram subject")
	}
	if _, err := parseSubject("telegram:notanumber"); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func TestChoiceKeyboardRows(t *testing.T) {
	kb := choiceKeyboard([]types.Choice{
		{Label: "A", Token: "a"},
		{Label: "B", Token: "b"},
		{Label: "C", Token: "c"},
	})
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(kb.InlineKeyboard))
	}
	if len(kb.InlineKeyboard[0]) != 2 || len(kb.InlineKeyboard[1]) != 1 {
		t.Errorf("expected rows of 2 and 1, got %d and %d", len(kb.InlineKeyboard[0]), len(kb.InlineKeyboard[1]))
	}
	if kb.InlineKeyboard[0][0].Text != "A" || *kb.InlineKeyboard[0][0].CallbackData != "a" {
		t.Errorf("unexpected first button: %+v", kb.InlineKeyboard[0][0])
	}
}
