package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"pr_digest_bot/internal/filter"
	"pr_digest_bot/internal/model"
)

const staleAfter = 24 * time.Hour

// staleMark flags pull requests idle for longer than staleAfter. Messages
// go out as plain text, so the mark is a literal prefix.
const staleMark = "! "

// NothingFound is the digest for a request without matches.
func NothingFound(req *model.DigestRequest) string {
	return "Nothing found for " + req.Describe(true)
}

// Render formats author groups, one header per author followed by one line
// per pull request.
func Render(groups []filter.Group, now time.Time) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "@%s\n", g.Login)
		for _, is := range g.Issues {
			b.WriteString(renderLine(is, now))
			b.WriteString("\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderLine(is model.Issue, now time.Time) string {
	age := humanize.RelTime(is.UpdatedAt, now, "ago", "from now")
	if now.Sub(is.UpdatedAt) > staleAfter {
		age = staleMark + age
	}
	assignee := is.Assignee
	if assignee == "" {
		assignee = "unassigned"
	}
	return fmt.Sprintf("  %s · %s · %s · %s %s",
		age, english.Plural(is.Comments, "comment", ""), assignee, is.Title, is.URL)
}
