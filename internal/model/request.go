package model

import (
	"fmt"
	"strings"
	"sync"

	"pr_digest_bot/internal/schedule"
)

// DigestRequest describes what to report and how often. Filters are set
// once at creation; only the job handle changes over its life.
type DigestRequest struct {
	ID          int64
	User        *User
	Team        *Team
	Org         *Org
	Room        int64
	RequestedBy string
	// Schedule is nil when the default weekday schedule applies.
	Schedule *schedule.Spec

	mu  sync.Mutex
	job Job
}

// NewDigestRequest builds an unscheduled request from optional filters.
func NewDigestRequest(user *User, team *Team, org *Org) *DigestRequest {
	r := &DigestRequest{}
	if user != nil {
		u := *user
		r.User = &u
	}
	if team != nil {
		t := *team
		r.Team = &t
	}
	if org != nil {
		o := *org
		r.Org = &o
	}
	return r
}

// Job returns the live job handle, or nil when the request is paused.
func (r *DigestRequest) Job() Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job
}

// SetJob replaces the live job handle; nil marks the request paused.
func (r *DigestRequest) SetJob(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job = j
}

// Active reports whether a live job is armed for the request.
func (r *DigestRequest) Active() bool {
	return r.Job() != nil
}

// Frequency returns the explicit schedule, or def when none was requested.
func (r *DigestRequest) Frequency(def schedule.Spec) schedule.Spec {
	if r.Schedule != nil {
		return *r.Schedule
	}
	return def
}

// Describe renders the request as a sentence. The default-frequency note is
// left out when omitDefaultFrequencyNote is set.
func (r *DigestRequest) Describe(omitDefaultFrequencyNote bool) string {
	var b strings.Builder
	b.WriteString("all PRs")
	if r.User != nil {
		fmt.Fprintf(&b, " by %s", r.User.Login)
	}
	if r.Team != nil {
		fmt.Fprintf(&b, " by members of team %s", teamName(r.Team))
	}
	if r.Org != nil {
		fmt.Fprintf(&b, " in organization %s", r.Org.Login)
	}
	switch {
	case r.Schedule != nil:
		fmt.Fprintf(&b, " on schedule %q", r.Schedule.String())
	case !omitDefaultFrequencyNote:
		b.WriteString(" every weekday morning")
	}
	return b.String()
}

// ShortDescribe renders the request as one line for tabular listings.
func (r *DigestRequest) ShortDescribe() string {
	var parts []string
	if r.User != nil {
		parts = append(parts, "user:"+r.User.Login)
	}
	if r.Team != nil {
		parts = append(parts, "team:"+r.Team.Slug)
	}
	if r.Org != nil {
		parts = append(parts, "org:"+r.Org.Login)
	}
	if len(parts) == 0 {
		parts = append(parts, "all PRs")
	}
	if r.Schedule != nil {
		parts = append(parts, fmt.Sprintf("cron:%q", r.Schedule.String()))
	}
	line := strings.Join(parts, " ")
	if !r.Active() {
		return "paused => " + line
	}
	return line
}

func teamName(t *Team) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Slug
}
