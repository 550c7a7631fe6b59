package digest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pr_digest_bot/internal/filter"
	"pr_digest_bot/internal/model"
)

// Producer fetches, filters and renders digests.
type Producer struct {
	src Source
	dir *Directory
	now func() time.Time
}

// NewProducer creates a Producer reading from src, using dir for the
// organization scope.
func NewProducer(src Source, dir *Directory) *Producer {
	return &Producer{src: src, dir: dir, now: time.Now}
}

// Fetched is the raw material of a digest: every issue in scope and the
// author set to keep, nil when every author matches.
type Fetched struct {
	Issues  []model.Issue
	Authors map[string]bool
}

// Fetch loads the issues of every organization in scope concurrently,
// along with the author filter. Any failure fails the whole fetch.
func (p *Producer) Fetch(ctx context.Context, req *model.DigestRequest) (Fetched, error) {
	scope, err := p.dir.Scope(ctx, req.Org)
	if err != nil {
		return Fetched{}, err
	}

	g, gctx := errgroup.WithContext(ctx)

	perOrg := make([][]model.Issue, len(scope))
	for i, o := range scope {
		g.Go(func() error {
			issues, err := p.src.OrgIssues(gctx, o.Login)
			if err != nil {
				return err
			}
			perOrg[i] = issues
			return nil
		})
	}

	var authors map[string]bool
	switch {
	case req.User != nil:
		authors = map[string]bool{req.User.Login: true}
	case req.Team != nil:
		teamID := req.Team.ID
		g.Go(func() error {
			members, err := p.src.TeamMembers(gctx, teamID)
			if err != nil {
				return err
			}
			authors = filter.Authors(members)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Fetched{}, err
	}

	var all []model.Issue
	for _, issues := range perOrg {
		all = append(all, issues...)
	}
	return Fetched{Issues: all, Authors: authors}, nil
}

// Produce builds the rendered digest for req.
func (p *Producer) Produce(ctx context.Context, req *model.DigestRequest) (string, error) {
	f, err := p.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	prs := filter.ByAuthors(filter.PullRequests(f.Issues), f.Authors)
	groups := filter.SortAndGroup(prs)
	if len(groups) == 0 {
		return NothingFound(req), nil
	}
	return Render(groups, p.now()), nil
}
