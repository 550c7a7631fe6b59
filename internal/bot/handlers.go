package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pr_digest_bot/internal/delivery"
	"pr_digest_bot/internal/service"
)

const (
	cmdDigest           = "digest"
	cmdSubscribe        = "subscribe"
	cmdSubscriptions    = "subscriptions"
	cmdAllSubscriptions = "allsubscriptions"
	cmdUnsubscribe      = "unsubscribe"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, startText)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleDigest(ctx context.Context, chatID int64, args string) {
	q, err := ParseQuery(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /digest [user:<login>] [team:<slug>] [org:<login>]", err))
		return
	}
	if q.Cron != "" {
		b.reply(chatID, "cron: only applies to /subscribe.")
		return
	}

	req, err := b.svc.Build(ctx, q)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	req.Room = chatID

	text, err := b.svc.Run(ctx, req)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.reply(chatID, text)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, requester, args string) {
	q, err := ParseQuery(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /subscribe [user:<login>] [team:<slug>] [org:<login>] [cron:\"<expr>\"]", err))
		return
	}

	req, err := b.svc.Subscribe(ctx, chatID, requester, q)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.reply(chatID, FormatSubscribed(req))
}

func (b *Bot) handleSubscriptions(ctx context.Context, chatID int64) {
	reqs, err := b.svc.List(ctx, chatID)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}

	text := FormatRoomSubscriptions(reqs)
	if len(reqs) == 0 || len(text) > delivery.MaxMessageLen {
		b.reply(chatID, text)
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Unsubscribe #%d", r.ID), fmt.Sprintf("%s:%d", cbUnsubscribeConfirm, r.ID)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send subscriptions", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleAllSubscriptions(ctx context.Context, chatID int64) {
	reqs, err := b.svc.ListAll(ctx)
	if err != nil {
		b.reply(chatID, errorText(err))
		return
	}
	b.reply(chatID, FormatAllSubscriptions(reqs))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unsubscribe <id>")
		return
	}

	req, err := b.svc.Unsubscribe(ctx, chatID, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
	case errors.Is(err, service.ErrForbidden):
		b.reply(chatID, fmt.Sprintf("Subscription #%d belongs to another chat and can only be cancelled there.", id))
	case err != nil:
		b.reply(chatID, errorText(err))
	default:
		b.reply(chatID, fmt.Sprintf("Unsubscribed #%d: %s.", id, req.Describe(false)))
	}
}

// errorText turns a service error into a chat reply.
func errorText(err error) string {
	var verr *service.ValidationError
	var ferr *service.FetchError
	switch {
	case errors.As(err, &verr):
		return "Invalid request: " + verr.Error()
	case errors.As(err, &ferr):
		return "Could not reach GitHub: " + ferr.Err.Error()
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
