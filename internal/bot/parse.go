package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pr_digest_bot/internal/service"
)

// clauseRe matches one leading key:value clause. Values may be quoted.
var clauseRe = regexp.MustCompile(`^(\w+):(?:"([^"]*)"|(\S+))`)

// Phones substitute typographic quotes while typing.
var quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`)

// ParseQuery parses the user:, team:, org: and cron:"..." clauses of a
// digest command. Every clause is optional and may appear at most once.
func ParseQuery(args string) (service.Query, error) {
	var q service.Query
	seen := make(map[string]bool)

	rest := strings.TrimSpace(quoteReplacer.Replace(args))
	for rest != "" {
		m := clauseRe.FindStringSubmatch(rest)
		if m == nil {
			return service.Query{}, fmt.Errorf("unexpected %q, expected user:, team:, org: or cron:\"...\"", strings.Fields(rest)[0])
		}
		key, val := strings.ToLower(m[1]), m[2]
		if m[3] != "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		if seen[key] {
			return service.Query{}, fmt.Errorf("%s: given more than once", key)
		}
		seen[key] = true
		if val == "" {
			return service.Query{}, fmt.Errorf("%s: needs a value", key)
		}

		switch key {
		case "user":
			q.User = strings.TrimPrefix(val, "@")
		case "team":
			q.Team = val
		case "org":
			q.Org = val
		case "cron":
			q.Cron = val
		default:
			return service.Query{}, fmt.Errorf("unknown clause %q, expected user:, team:, org: or cron:", key+":")
		}

		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	return q, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("subscription ID is required")
	}
	field := strings.TrimPrefix(strings.Fields(s)[0], "#")
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subscription ID %q", s)
	}
	return id, nil
}
