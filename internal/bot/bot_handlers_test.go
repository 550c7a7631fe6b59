package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"pr_digest_bot/internal/config"
	"pr_digest_bot/internal/digest"
	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/reach"
	"pr_digest_bot/internal/schedule"
	"pr_digest_bot/internal/scheduler"
	"pr_digest_bot/internal/service"
	"pr_digest_bot/internal/storage"
	"pr_digest_bot/internal/subscription"
)

// --- mocks ---

type sentMsg struct {
	ChatID   int64
	Text     string
	Keyboard bool
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	sendErr error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		if m.sendErr != nil {
			return tgbotapi.Message{}, m.sendErr
		}
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Keyboard: msg.ReplyMarkup != nil})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockProducer struct {
	text string
	err  error
}

func (m *mockProducer) Produce(_ context.Context, req *model.DigestRequest) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text + " " + req.Describe(true), nil
}

type mockResolver struct{}

func (mockResolver) ResolveOrg(_ context.Context, login string) (*model.Org, error) {
	if login != "acme" {
		return nil, fmt.Errorf("%w: %s", digest.ErrUnknownOrg, login)
	}
	return &model.Org{Login: login}, nil
}

func (mockResolver) Scope(_ context.Context, org *model.Org) ([]model.Org, error) {
	return []model.Org{{Login: "acme"}}, nil
}

func (mockResolver) ResolveTeam(_ context.Context, name string, _ []model.Org) (*model.Team, error) {
	if name != "core" {
		return nil, fmt.Errorf("%w: %s", digest.ErrUnknownTeam, name)
	}
	return &model.Team{ID: 1, Slug: "core", Name: "Core", Org: "acme"}, nil
}

func (mockResolver) ResolveUser(_ context.Context, login string, _ []model.Org) (*model.User, error) {
	if login == "ghost" {
		return nil, fmt.Errorf("%w: %s", digest.ErrUnknownUser, login)
	}
	return &model.User{Login: login}, nil
}

// --- helpers ---

type testEnv struct {
	bot      *Bot
	api      *mockAPI
	svc      *service.Service
	producer *mockProducer
}

func newTestBot(t *testing.T) *testEnv {
	t.Helper()
	kv, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := scheduler.New(schedule.Default(), time.UTC, log)
	producer := &mockProducer{text: "digest:"}
	svc := service.New(subscription.New(kv, log), engine, reach.NewTracker(), producer, mockResolver{}, log)
	t.Cleanup(svc.Close)

	api := &mockAPI{}
	b := &Bot{
		api: api,
		svc: svc,
		cfg: &config.Config{},
		log: log,
	}
	return &testEnv{bot: b, api: api, svc: svc, producer: producer}
}

func seedSubscription(t *testing.T, env *testEnv, room int64, q service.Query) *model.DigestRequest {
	t.Helper()
	r, err := env.svc.Subscribe(context.Background(), room, "seed", q)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return r
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func commandMsg(chatID, userID int64, cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID, UserName: "alice"},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	env := newTestBot(t)
	env.bot.handleStart(100)
	requireContains(t, env.api.lastText(), "Welcome to PR Digest Bot")
}

func TestHandleHelp(t *testing.T) {
	env := newTestBot(t)
	env.bot.handleHelp(100)
	requireContains(t, env.api.lastText(), "/subscribe")
	requireContains(t, env.api.lastText(), "/unsubscribe <id>")
}

func TestHandleDigest(t *testing.T) {
	ctx := context.Background()

	t.Run("bad clause", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleDigest(ctx, 100, "repo:x")
		requireContains(t, env.api.lastText(), "Usage: /digest")
	})

	t.Run("cron rejected", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleDigest(ctx, 100, "cron:@daily")
		requireContains(t, env.api.lastText(), "only applies to /subscribe")
	})

	t.Run("unknown org", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleDigest(ctx, 100, "org:nope")
		requireContains(t, env.api.lastText(), "Invalid request: unknown organization: nope")
	})

	t.Run("success", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleDigest(ctx, 100, "team:core org:acme")
		if diff := cmp.Diff("digest: all PRs by members of team Core in organization acme", env.api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		env := newTestBot(t)
		env.producer.err = errors.New("unexpected status 502")
		env.bot.handleDigest(ctx, 100, "")
		requireContains(t, env.api.lastText(), "Could not reach GitHub: unexpected status 502")
	})

	t.Run("does not store anything", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleDigest(ctx, 100, "user:bob")
		all, _ := env.svc.ListAll(ctx)
		if len(all) != 0 {
			t.Errorf("one-shot digest stored %d subscriptions", len(all))
		}
	})
}

func TestHandleSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("bad clause", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleSubscribe(ctx, 100, "alice", "everything")
		requireContains(t, env.api.lastText(), "Usage: /subscribe")
	})

	t.Run("invalid cron", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleSubscribe(ctx, 100, "alice", `cron:"61 * * * *"`)
		requireContains(t, env.api.lastText(), "Invalid request")
		all, _ := env.svc.ListAll(ctx)
		if len(all) != 0 {
			t.Errorf("invalid subscribe stored %d subscriptions", len(all))
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleSubscribe(ctx, 100, "alice", "user:ghost")
		requireContains(t, env.api.lastText(), "user not found: ghost")
	})

	t.Run("success", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleSubscribe(ctx, 100, "alice", `user:bob cron:"0 10 * * 1"`)
		if diff := cmp.Diff(`Subscribed #1: all PRs by bob on schedule "0 10 * * 1".`, env.api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}

		reqs, _ := env.svc.List(ctx, 100)
		if len(reqs) != 1 {
			t.Fatalf("stored %d subscriptions, want 1", len(reqs))
		}
		if diff := cmp.Diff("alice", reqs[0].RequestedBy); diff != "" {
			t.Errorf("requested by (-want +got):\n%s", diff)
		}
	})
}

func TestHandleSubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleSubscriptions(ctx, 100)
		requireContains(t, env.api.lastText(), "No subscriptions in this chat")
		if env.api.last().Keyboard {
			t.Error("empty listing should not carry a keyboard")
		}
	})

	t.Run("only this room", func(t *testing.T) {
		env := newTestBot(t)
		seedSubscription(t, env, 100, service.Query{User: "bob"})
		seedSubscription(t, env, 200, service.Query{})

		env.bot.handleSubscriptions(ctx, 100)
		want := "id\trequested by\tdescription\n1\tseed\tpaused => user:bob"
		if diff := cmp.Diff(want, env.api.lastText()); diff != "" {
			t.Errorf("listing (-want +got):\n%s", diff)
		}
		if !env.api.last().Keyboard {
			t.Error("listing should carry unsubscribe buttons")
		}
	})
}

func TestHandleAllSubscriptions(t *testing.T) {
	env := newTestBot(t)
	seedSubscription(t, env, 100, service.Query{User: "bob"})
	seedSubscription(t, env, 200, service.Query{Org: "acme"})

	env.bot.handleAllSubscriptions(context.Background(), 100)
	want := strings.Join([]string{
		"id\troom\trequested by\tdescription",
		"1\t100\tseed\tpaused => user:bob",
		"2\t200\tseed\tpaused => org:acme",
	}, "\n")
	if diff := cmp.Diff(want, env.api.lastText()); diff != "" {
		t.Errorf("listing (-want +got):\n%s", diff)
	}
}

func TestHandleUnsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleUnsubscribe(ctx, 100, "")
		requireContains(t, env.api.lastText(), "Usage: /unsubscribe")
	})

	t.Run("not found", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleUnsubscribe(ctx, 100, "9")
		requireContains(t, env.api.lastText(), "Subscription #9 not found")
	})

	t.Run("other room", func(t *testing.T) {
		env := newTestBot(t)
		seedSubscription(t, env, 200, service.Query{})
		env.bot.handleUnsubscribe(ctx, 100, "1")
		requireContains(t, env.api.lastText(), "belongs to another chat")
		all, _ := env.svc.ListAll(ctx)
		if len(all) != 1 {
			t.Errorf("forbidden unsubscribe left %d subscriptions, want 1", len(all))
		}
	})

	t.Run("success", func(t *testing.T) {
		env := newTestBot(t)
		seedSubscription(t, env, 100, service.Query{User: "bob"})
		env.bot.handleUnsubscribe(ctx, 100, "1")
		requireContains(t, env.api.lastText(), "Unsubscribed #1: all PRs by bob")
		reqs, _ := env.svc.List(ctx, 100)
		if len(reqs) != 0 {
			t.Errorf("subscription still stored")
		}
	})
}

func TestHandleUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("plain message resumes paused subscriptions", func(t *testing.T) {
		env := newTestBot(t)
		r := seedSubscription(t, env, 100, service.Query{})
		if r.Active() {
			t.Fatal("subscription armed before any activity")
		}

		env.bot.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			From: &tgbotapi.User{ID: 1},
			Text: "good morning",
		}})

		if !r.Active() {
			t.Error("subscription not armed after activity in its room")
		}
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("plain message should not be answered (-want +got):\n%s", diff)
		}
	})

	t.Run("subscribe in reachable room arms immediately", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(100, 1, "subscribe", "user:bob")})
		requireContains(t, env.api.lastText(), "Subscribed #1")

		reqs, _ := env.svc.List(ctx, 100)
		if len(reqs) != 1 || !reqs[0].Active() {
			t.Error("subscription in reachable room should be armed")
		}
	})

	t.Run("access denied", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.cfg = &config.Config{AllowedUsers: []int64{7}}
		env.bot.handleUpdate(ctx, tgbotapi.Update{Message: commandMsg(100, 1, "subscribe", "")})
		requireContains(t, env.api.lastText(), "Access denied")
		all, _ := env.svc.ListAll(ctx)
		if len(all) != 0 {
			t.Error("denied user created a subscription")
		}
	})

	t.Run("empty update", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleUpdate(ctx, tgbotapi.Update{})
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("expected no messages (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()
	env := newTestBot(t)

	cmds := []struct {
		cmd      string
		args     string
		contains string
	}{
		{"start", "", "Welcome"},
		{"help", "", "/digest"},
		{"digest", "", "digest: all PRs"},
		{"subscribe", "org:acme", "Subscribed #1"},
		{"subscriptions", "", "org:acme"},
		{"allsubscriptions", "", "id\troom"},
		{"unsubscribe", "1", "Unsubscribed #1"},
		{"unknown_cmd", "", "Unknown command"},
	}

	for _, tc := range cmds {
		env.api.reset()
		env.bot.handleCommand(ctx, commandMsg(100, 1, tc.cmd, tc.args))
		requireContains(t, env.api.lastText(), tc.contains)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	callback := func(data string) *tgbotapi.CallbackQuery {
		return &tgbotapi.CallbackQuery{
			ID:      "cb",
			Data:    data,
			From:    &tgbotapi.User{ID: 1},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
	}

	t.Run("invalid data format", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleCallback(ctx, callback("nocolon"))
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleCallback(ctx, callback("unsubscribe:abc"))
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("confirm", func(t *testing.T) {
		env := newTestBot(t)
		seedSubscription(t, env, 100, service.Query{User: "bob"})
		env.bot.handleCallback(ctx, callback("unsubscribe_confirm:1"))
		requireContains(t, env.api.lastText(), "Cancel #1: all PRs by bob")
		if !env.api.last().Keyboard {
			t.Error("confirmation should carry buttons")
		}
	})

	t.Run("confirm unknown", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleCallback(ctx, callback("unsubscribe_confirm:5"))
		requireContains(t, env.api.lastText(), "Subscription #5 not found")
	})

	t.Run("unsubscribe", func(t *testing.T) {
		env := newTestBot(t)
		seedSubscription(t, env, 100, service.Query{})
		env.bot.handleCallback(ctx, callback("unsubscribe:1"))
		requireContains(t, env.api.lastText(), "Unsubscribed #1")
	})

	t.Run("noop", func(t *testing.T) {
		env := newTestBot(t)
		env.bot.handleCallback(ctx, callback("noop:0"))
		if diff := cmp.Diff(0, len(env.api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})
}

func TestSendMessage(t *testing.T) {
	env := newTestBot(t)
	if err := env.bot.SendMessage(100, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	env.api.sendErr = errors.New("forbidden: bot was kicked")
	err := env.bot.SendMessage(100, "hi")
	if err == nil || !strings.Contains(err.Error(), "bot was kicked") {
		t.Errorf("SendMessage() error = %v", err)
	}
}

func TestReplySplitsLongText(t *testing.T) {
	env := newTestBot(t)
	line := strings.Repeat("y", 99)
	env.bot.reply(100, strings.TrimSuffix(strings.Repeat(line+"\n", 50), "\n"))
	if diff := cmp.Diff(2, len(env.api.allTexts())); diff != "" {
		t.Errorf("reply parts (-want +got):\n%s", diff)
	}
}

func TestRequesterName(t *testing.T) {
	tests := []struct {
		name string
		user *tgbotapi.User
		want string
	}{
		{name: "nil", user: nil, want: "unknown"},
		{name: "username", user: &tgbotapi.User{ID: 1, UserName: "alice", FirstName: "Alice"}, want: "alice"},
		{name: "full name", user: &tgbotapi.User{ID: 1, FirstName: "Alice", LastName: "Doe"}, want: "Alice Doe"},
		{name: "id", user: &tgbotapi.User{ID: 7}, want: "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requesterName(tt.user); got != tt.want {
				t.Errorf("requesterName() = %q, want %q", got, tt.want)
			}
		})
	}
}
