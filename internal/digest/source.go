// Package digest builds pull request digests for digest requests.
package digest

import (
	"context"

	"pr_digest_bot/internal/model"
)

// Source is the issue tracker the digest is built from.
type Source interface {
	OrgIssues(ctx context.Context, org string) ([]model.Issue, error)
	OrgMembers(ctx context.Context, org string) ([]model.User, error)
	TeamMembers(ctx context.Context, teamID int64) ([]model.User, error)
	UserOrgs(ctx context.Context) ([]model.Org, error)
	OrgTeams(ctx context.Context, org string) ([]model.Team, error)
}
