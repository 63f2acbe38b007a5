// internal/telegram/adapter.go
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/telerpg/internal/gateway"
	"github.com/user/telerpg/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the gateway: long-polled messages and
// callback queries go in as inbound events, replies and notifications
// come back out as Telegram messages with optional inline keyboards.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	gateway *gateway.Gateway
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot, gateway: gw}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			switch {
			case update.CallbackQuery != nil:
				a.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.Text != "":
				a.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	event := &types.InboundEvent{
		Source:    "telegram",
		SubjectID: buildSubject(chatID),
		Text:      msg.Text,
	}

	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnReply(func(reply *types.Reply) {
		a.sendReply(chatID, reply)
	}))
	if err != nil {
		slog.Error("handle inbound message", "chat_id", chatID, "error", err)
		a.sendReply(chatID, &types.Reply{Text: "Sorry, I encountered an error processing your message."})
	}
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge immediately so the button stops spinning.
	if _, err := a.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		slog.Warn("acknowledge callback", "error", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	event := &types.InboundEvent{
		Source:    "telegram",
		SubjectID: buildSubject(chatID),
		Callback:  cb.Data,
	}
	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnReply(func(reply *types.Reply) {
		a.sendReply(chatID, reply)
	}))
	if err != nil {
		slog.Error("handle inbound callback", "chat_id", chatID, "error", err)
	}
}

// SendTo delivers a reply to a subject outside a request cycle. It is
// the delivery-registry handler for the "telegram:" prefix.
func (a *Adapter) SendTo(subject types.SubjectID, reply *types.Reply) error {
	chatID, err := parseSubject(subject)
	if err != nil {
		return err
	}
	a.sendReply(chatID, reply)
	return nil
}

func (a *Adapter) sendReply(chatID int64, reply *types.Reply) {
	parts := splitMessage(reply.Text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		// Attach the keyboard to the final part only.
		if i == len(parts)-1 && len(reply.Choices) > 0 {
			msg.ReplyMarkup = choiceKeyboard(reply.Choices)
		}
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message", "chat_id", chatID, "error", err)
			}
		}
	}
}

// choiceKeyboard renders reply choices as an inline keyboard, two
// buttons per row.
func choiceKeyboard(choices []types.Choice) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Token))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildSubject(chatID int64) types.SubjectID {
	return types.NewSubjectID("telegram", strconv.FormatInt(chatID, 10))
}

func parseSubject(subject types.SubjectID) (int64, error) {
	s := string(subject)
	rest, ok := strings.CutPrefix(s, "telegram:")
	if !ok {
		return 0, fmt.Errorf("subject %s is not a telegram subject", subject)
	}
	chatID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse telegram subject %s: %w", subject, err)
	}
	return chatID, nil
}
