package bot

import (
	"fmt"
	"strings"

	"pr_digest_bot/internal/model"
)

const nextRunLayout = "Mon Jan 2 15:04 MST"

const startText = `Welcome to PR Digest Bot!

I post digests of open GitHub pull requests, once or on a schedule.

Quick start:
1. /digest — all open PRs right now
2. /subscribe team:backend — backend team PRs every weekday morning
3. /subscriptions — what this chat is subscribed to

Use /help for the full command reference.`

const helpText = `Digests:
/digest [user:<login>] [team:<slug>] [org:<login>] — post a digest now
/subscribe [user:..] [team:..] [org:..] [cron:"<expr>"] — post a digest on a schedule

Subscriptions:
/subscriptions — subscriptions of this chat
/allsubscriptions — subscriptions of every chat
/unsubscribe <id> — cancel a subscription of this chat

Without cron: digests arrive every weekday morning.
cron takes five fields (minute hour day month weekday) or a descriptor, e.g. cron:"30 8 * * 1-5" or cron:"@daily".
Subscriptions pause after a restart and resume with the next message in their chat.`

// FormatRoomSubscriptions renders the subscriptions of one chat as a
// tab-separated table.
func FormatRoomSubscriptions(reqs []*model.DigestRequest) string {
	if len(reqs) == 0 {
		return "No subscriptions in this chat. Use /subscribe to add one."
	}
	var b strings.Builder
	b.WriteString("id\trequested by\tdescription")
	for _, r := range reqs {
		fmt.Fprintf(&b, "\n%d\t%s\t%s%s", r.ID, r.RequestedBy, r.ShortDescribe(), nextRun(r))
	}
	return b.String()
}

// FormatAllSubscriptions renders every subscription with its owning chat.
func FormatAllSubscriptions(reqs []*model.DigestRequest) string {
	if len(reqs) == 0 {
		return "No subscriptions yet."
	}
	var b strings.Builder
	b.WriteString("id\troom\trequested by\tdescription")
	for _, r := range reqs {
		fmt.Fprintf(&b, "\n%d\t%d\t%s\t%s%s", r.ID, r.Room, r.RequestedBy, r.ShortDescribe(), nextRun(r))
	}
	return b.String()
}

// FormatSubscribed confirms a new subscription.
func FormatSubscribed(r *model.DigestRequest) string {
	return fmt.Sprintf("Subscribed #%d: %s.%s", r.ID, r.Describe(false), nextRun(r))
}

func nextRun(r *model.DigestRequest) string {
	j := r.Job()
	if j == nil {
		return ""
	}
	t := j.Next()
	if t.IsZero() {
		return ""
	}
	return " (next " + t.Format(nextRunLayout) + ")"
}
