// Package delivery sends produced digests to their rooms.
package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"pr_digest_bot/internal/model"
)

// MaxMessageLen is the longest text Telegram accepts in one message.
const MaxMessageLen = 4096

// Sender posts text into a room.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Dispatcher drains a digest stream into a Sender at a bounded rate.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	retries int
	backoff time.Duration
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher sending at most perSecond messages per
// second. A non-positive rate disables limiting.
func NewDispatcher(sender Sender, perSecond int, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		retries: 2,
		backoff: 200 * time.Millisecond,
		log:     log,
	}
	if perSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return d
}

// Run delivers digests until in is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan model.Digest) {
	for {
		select {
		case <-ctx.Done():
			return
		case dg, ok := <-in:
			if !ok {
				return
			}
			d.Deliver(ctx, dg)
		}
	}
}

// Deliver sends one digest, split into as many messages as needed. Parts
// after a failed one are dropped so the room never sees a digest with a hole.
func (d *Dispatcher) Deliver(ctx context.Context, dg model.Digest) {
	for i, part := range Split(dg.Text, MaxMessageLen) {
		if err := d.send(ctx, dg.Room, part); err != nil {
			d.log.Error("deliver digest", "request_id", dg.RequestID, "room", dg.Room, "part", i+1, "error", err)
			return
		}
	}
	d.log.Debug("digest delivered", "request_id", dg.RequestID, "room", dg.Room)
}

func (d *Dispatcher) send(ctx context.Context, room int64, text string) error {
	var last error
	for i := 0; i <= d.retries; i++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		last = d.sender.SendMessage(room, text)
		if last == nil {
			return nil
		}
		if i == d.retries {
			break
		}
		delay := d.backoff * time.Duration(i+1)
		d.log.Debug("send retry scheduled", "room", room, "attempt", i+2, "delay", delay, "error", last)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}

// Split breaks text into chunks of at most limit bytes, cutting at line
// boundaries when it can and never inside a UTF-8 sequence. A rune wider
// than limit gets a chunk of its own. A non-positive limit is treated as 1.
func Split(text string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				// limit is narrower than the first rune; emit it whole.
				_, cut = utf8.DecodeRuneInString(text)
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
