// Package github is the issue-tracker client used to build digests.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pr_digest_bot/internal/model"
)

const (
	perPage  = 100
	maxPages = 20
	maxBody  = 16 * 1024 * 1024
)

// Results that cannot be read whole. A digest is never built from part of
// the data.
var (
	ErrTooManyPages     = errors.New("too many result pages")
	ErrResponseTooLarge = errors.New("response too large")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the GitHub REST API.
type Client struct {
	client  HTTPClient
	baseURL string
	token   string
	timeout time.Duration
	maxBody int64
}

// New creates a Client for baseURL authenticated with token.
func New(client HTTPClient, baseURL, token string) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: 30 * time.Second,
		maxBody: maxBody,
	}
}

type apiUser struct {
	Login string `json:"login"`
}

type apiIssue struct {
	Number      int              `json:"number"`
	Title       string           `json:"title"`
	HTMLURL     string           `json:"html_url"`
	User        *apiUser         `json:"user"`
	Assignee    *apiUser         `json:"assignee"`
	Comments    int              `json:"comments"`
	UpdatedAt   time.Time        `json:"updated_at"`
	PullRequest *json.RawMessage `json:"pull_request"`
}

type apiTeam struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// OrgIssues returns the open issues and pull requests of org.
func (c *Client) OrgIssues(ctx context.Context, org string) ([]model.Issue, error) {
	var raw []apiIssue
	path := "/orgs/" + url.PathEscape(org) + "/issues"
	if err := getAll(ctx, c, path, url.Values{"filter": {"all"}, "state": {"open"}}, &raw); err != nil {
		return nil, fmt.Errorf("org %s issues: %w", org, err)
	}

	issues := make([]model.Issue, 0, len(raw))
	for _, r := range raw {
		is := model.Issue{
			Number:      r.Number,
			Title:       r.Title,
			URL:         r.HTMLURL,
			Comments:    r.Comments,
			UpdatedAt:   r.UpdatedAt,
			PullRequest: r.PullRequest != nil,
		}
		if r.User != nil {
			is.Author = r.User.Login
		}
		if r.Assignee != nil {
			is.Assignee = r.Assignee.Login
		}
		issues = append(issues, is)
	}
	return issues, nil
}

// OrgMembers returns the members of org.
func (c *Client) OrgMembers(ctx context.Context, org string) ([]model.User, error) {
	var raw []apiUser
	if err := getAll(ctx, c, "/orgs/"+url.PathEscape(org)+"/members", nil, &raw); err != nil {
		return nil, fmt.Errorf("org %s members: %w", org, err)
	}
	return toUsers(raw), nil
}

// TeamMembers returns the members of the team with id.
func (c *Client) TeamMembers(ctx context.Context, teamID int64) ([]model.User, error) {
	var raw []apiUser
	if err := getAll(ctx, c, "/teams/"+strconv.FormatInt(teamID, 10)+"/members", nil, &raw); err != nil {
		return nil, fmt.Errorf("team %d members: %w", teamID, err)
	}
	return toUsers(raw), nil
}

// UserOrgs returns the organizations of the authenticated user.
func (c *Client) UserOrgs(ctx context.Context) ([]model.Org, error) {
	var raw []apiUser
	if err := getAll(ctx, c, "/user/orgs", nil, &raw); err != nil {
		return nil, fmt.Errorf("user orgs: %w", err)
	}
	orgs := make([]model.Org, 0, len(raw))
	for _, r := range raw {
		orgs = append(orgs, model.Org{Login: r.Login})
	}
	return orgs, nil
}

// OrgTeams returns the teams of org.
func (c *Client) OrgTeams(ctx context.Context, org string) ([]model.Team, error) {
	var raw []apiTeam
	if err := getAll(ctx, c, "/orgs/"+url.PathEscape(org)+"/teams", nil, &raw); err != nil {
		return nil, fmt.Errorf("org %s teams: %w", org, err)
	}
	teams := make([]model.Team, 0, len(raw))
	for _, r := range raw {
		teams = append(teams, model.Team{ID: r.ID, Slug: r.Slug, Name: r.Name, Org: org})
	}
	return teams, nil
}

// getAll follows page numbers until a short page is returned. More than
// maxPages full pages is an error rather than a truncated result.
func getAll[T any](ctx context.Context, c *Client, path string, query url.Values, out *[]T) error {
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))

		var batch []T
		if err := c.get(ctx, path, q, &batch); err != nil {
			return err
		}
		if page > maxPages && len(batch) > 0 {
			return fmt.Errorf("%w: more than %d", ErrTooManyPages, maxPages*perPage)
		}
		*out = append(*out, batch...)
		if len(batch) < perPage {
			return nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "PRDigestBot/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toUsers(raw []apiUser) []model.User {
	users := make([]model.User, 0, len(raw))
	for _, r := range raw {
		users = append(users, model.User{Login: r.Login})
	}
	return users
}
