package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pr_digest_bot/internal/config"
	"pr_digest_bot/internal/delivery"
	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/service"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the digest subscription service the bot drives.
type Service interface {
	ObserveRoom(ctx context.Context, room int64) (int, error)
	Build(ctx context.Context, q service.Query) (*model.DigestRequest, error)
	Run(ctx context.Context, req *model.DigestRequest) (string, error)
	Subscribe(ctx context.Context, room int64, requestedBy string, q service.Query) (*model.DigestRequest, error)
	Unsubscribe(ctx context.Context, room, id int64) (*model.DigestRequest, error)
	List(ctx context.Context, room int64) ([]*model.DigestRequest, error)
	ListAll(ctx context.Context) ([]*model.DigestRequest, error)
}

// Bot is the Telegram bot that handles user commands and sends digests.
type Bot struct {
	api telegramAPI
	svc Service
	cfg *config.Config
	log *slog.Logger
}

// New creates a Bot with the given Telegram token, service, and config.
func New(token string, svc Service, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		svc: svc,
		cfg: cfg,
		log: log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		b.observe(ctx, cb.Message.Chat.ID)
		if cb.From == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	// Any message counts as activity, commands or not.
	b.observe(ctx, msg.Chat.ID)

	if !msg.IsCommand() {
		return
	}
	if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

func (b *Bot) observe(ctx context.Context, chatID int64) {
	if _, err := b.svc.ObserveRoom(ctx, chatID); err != nil {
		b.log.Error("observe room", "room", chatID, "error", err)
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	for _, part := range delivery.Split(text, delivery.MaxMessageLen) {
		if err := b.SendMessage(chatID, part); err != nil {
			b.log.Error("send reply", "chat_id", chatID, "error", err)
			return
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdDigest:
		b.handleDigest(ctx, chatID, args)
	case cmdSubscribe:
		b.handleSubscribe(ctx, chatID, requesterName(msg.From), args)
	case cmdSubscriptions:
		b.handleSubscriptions(ctx, chatID)
	case cmdAllSubscriptions:
		b.handleAllSubscriptions(ctx, chatID)
	case cmdUnsubscribe:
		b.handleUnsubscribe(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// requesterName is the name recorded as the author of a subscription.
func requesterName(u *tgbotapi.User) string {
	switch {
	case u == nil:
		return "unknown"
	case u.UserName != "":
		return u.UserName
	case u.FirstName != "":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	default:
		return fmt.Sprintf("%d", u.ID)
	}
}
