// Package filter implements the pure stages of the digest pipeline:
// pull-request selection, author filtering, sorting and grouping.
package filter

import (
	"sort"

	"pr_digest_bot/internal/model"
)

// Group is the issues of one author, oldest update first.
type Group struct {
	Login  string
	Issues []model.Issue
}

// PullRequests drops plain issues.
func PullRequests(issues []model.Issue) []model.Issue {
	var out []model.Issue
	for _, is := range issues {
		if is.PullRequest {
			out = append(out, is)
		}
	}
	return out
}

// Authors builds an author set from logins.
func Authors(users []model.User) map[string]bool {
	set := make(map[string]bool, len(users))
	for _, u := range users {
		set[u.Login] = true
	}
	return set
}

// ByAuthors keeps issues whose author is in authors. A nil set matches
// everything; an empty set matches nothing.
func ByAuthors(issues []model.Issue, authors map[string]bool) []model.Issue {
	if authors == nil {
		return issues
	}
	var out []model.Issue
	for _, is := range issues {
		if authors[is.Author] {
			out = append(out, is)
		}
	}
	return out
}

// SortAndGroup orders issues by last update, oldest first, then groups them
// by author. Groups appear in the order their author first shows up in the
// sorted list.
func SortAndGroup(issues []model.Issue) []Group {
	sorted := make([]model.Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})

	var groups []Group
	index := make(map[string]int)
	for _, is := range sorted {
		i, ok := index[is.Author]
		if !ok {
			i = len(groups)
			index[is.Author] = i
			groups = append(groups, Group{Login: is.Author})
		}
		groups[i].Issues = append(groups[i].Issues, is)
	}
	return groups
}
