// Package model defines the domain types used across the application.
package model

import "time"

// User is an issue-tracker account, identified by its login.
type User struct {
	Login string
}

// Org is an issue-tracker organization, identified by its login.
type Org struct {
	Login string
}

// Team is a team inside an organization. ID is the stable identity; Slug
// and Name are kept for display and command matching.
type Team struct {
	ID   int64
	Slug string
	Name string
	Org  string
}

// Issue is an issue or pull request as reported by the issue tracker.
type Issue struct {
	Number      int
	Title       string
	URL         string
	Author      string
	Assignee    string
	Comments    int
	UpdatedAt   time.Time
	PullRequest bool
}

// Digest is a rendered report ready for delivery into a room.
type Digest struct {
	RequestID int64
	Room      int64
	Text      string
}

// Job is the handle of a live scheduled job.
type Job interface {
	Next() time.Time
}
