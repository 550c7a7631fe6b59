package digest

import (
	"context"
	"fmt"
	"sync"

	"pr_digest_bot/internal/model"
)

// fakeSource is an in-memory issue tracker.
type fakeSource struct {
	mu          sync.Mutex
	orgs        []model.Org
	teams       map[string][]model.Team
	issues      map[string][]model.Issue
	orgMembers  map[string][]model.User
	teamMembers map[int64][]model.User
	failOrg     string
	calls       map[string]int
}

func (f *fakeSource) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeSource) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) OrgIssues(_ context.Context, org string) ([]model.Issue, error) {
	f.count("OrgIssues:" + org)
	if org == f.failOrg {
		return nil, fmt.Errorf("org %s issues: unexpected status 502", org)
	}
	return f.issues[org], nil
}

func (f *fakeSource) OrgMembers(_ context.Context, org string) ([]model.User, error) {
	f.count("OrgMembers:" + org)
	return f.orgMembers[org], nil
}

func (f *fakeSource) TeamMembers(_ context.Context, teamID int64) ([]model.User, error) {
	f.count(fmt.Sprintf("TeamMembers:%d", teamID))
	return f.teamMembers[teamID], nil
}

func (f *fakeSource) UserOrgs(_ context.Context) ([]model.Org, error) {
	f.count("UserOrgs")
	return f.orgs, nil
}

func (f *fakeSource) OrgTeams(_ context.Context, org string) ([]model.Team, error) {
	f.count("OrgTeams:" + org)
	return f.teams[org], nil
}
