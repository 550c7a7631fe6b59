package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pr_digest_bot/internal/model"
)

// Lookup failures reported to the requester.
var (
	ErrUnknownOrg  = errors.New("unknown organization")
	ErrUnknownUser = errors.New("user not found")
	ErrUnknownTeam = errors.New("team not found")
)

// Directory caches the organizations visible to the bot and their teams.
type Directory struct {
	src Source

	mu    sync.Mutex
	orgs  []model.Org
	teams map[string][]model.Team
}

// NewDirectory creates an empty Directory over src.
func NewDirectory(src Source) *Directory {
	return &Directory{src: src, teams: make(map[string][]model.Team)}
}

// Orgs returns the known organizations, fetching them on first use.
func (d *Directory) Orgs(ctx context.Context) ([]model.Org, error) {
	d.mu.Lock()
	cached := d.orgs
	d.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	orgs, err := d.src.UserOrgs(ctx)
	if err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = []model.Org{}
	}

	d.mu.Lock()
	d.orgs = orgs
	d.mu.Unlock()
	return orgs, nil
}

// Teams returns the teams of org, fetching them on first use.
func (d *Directory) Teams(ctx context.Context, org string) ([]model.Team, error) {
	d.mu.Lock()
	cached, ok := d.teams[org]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	teams, err := d.src.OrgTeams(ctx, org)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.teams[org] = teams
	d.mu.Unlock()
	return teams, nil
}

// Reset drops every cached entry.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgs = nil
	d.teams = make(map[string][]model.Team)
}

// ResolveOrg finds a known organization by login, ignoring case.
func (d *Directory) ResolveOrg(ctx context.Context, login string) (*model.Org, error) {
	orgs, err := d.Orgs(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orgs {
		if strings.EqualFold(o.Login, login) {
			found := o
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOrg, login)
}

// Scope returns org alone when set, else every known organization.
func (d *Directory) Scope(ctx context.Context, org *model.Org) ([]model.Org, error) {
	if org != nil {
		return []model.Org{*org}, nil
	}
	return d.Orgs(ctx)
}

// ResolveTeam finds a team by slug or name in the organizations in scope.
func (d *Directory) ResolveTeam(ctx context.Context, name string, scope []model.Org) (*model.Team, error) {
	for _, o := range scope {
		teams, err := d.Teams(ctx, o.Login)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			if strings.EqualFold(t.Slug, name) || strings.EqualFold(t.Name, name) {
				found := t
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, name)
}

// ResolveUser finds a member of one of the organizations in scope.
// Memberships are not cached.
func (d *Directory) ResolveUser(ctx context.Context, login string, scope []model.Org) (*model.User, error) {
	for _, o := range scope {
		members, err := d.src.OrgMembers(ctx, o.Login)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if strings.EqualFold(m.Login, login) {
				found := m
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, login)
}
