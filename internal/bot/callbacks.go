package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbUnsubscribeConfirm = "unsubscribe_confirm"
	cbUnsubscribe        = "unsubscribe"
	cbNoop               = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	idStr := parts[1]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	log := b.log.With("action", action, "id", id, "chat_id", chatID)
	if cb.From != nil {
		log = log.With("user_id", cb.From.ID, "username", cb.From.UserName)
	}
	log.Info("callback")

	switch action {
	case cbUnsubscribeConfirm:
		b.confirmUnsubscribe(ctx, chatID, id)
	case cbUnsubscribe:
		b.handleUnsubscribe(ctx, chatID, idStr)
	case cbNoop:
	}
}

func (b *Bot) confirmUnsubscribe(ctx context.Context, chatID, id int64) {
	reqs, err := b.svc.List(ctx, chatID)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	for _, r := range reqs {
		if r.ID != id {
			continue
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Cancel #%d: %s?", id, r.Describe(false)))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, unsubscribe", fmt.Sprintf("%s:%d", cbUnsubscribe, id)),
				tgbotapi.NewInlineKeyboardButtonData("Keep", cbNoop+":0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send unsubscribe confirmation", "error", err)
		}
		return
	}
	b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
}
