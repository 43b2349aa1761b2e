package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers whether a URL may be fetched according to its host's
// robots.txt. Groups are cached per host for the lifetime of the policy.
// A missing or unreadable robots.txt allows everything.
type RobotsPolicy struct {
	mu     sync.Mutex
	groups map[string]*robotstxt.Group
	agent  string
	client *http.Client
}

// NewRobotsPolicy creates a policy evaluated for agent
func NewRobotsPolicy(agent string) *RobotsPolicy {
	return &RobotsPolicy{
		groups: make(map[string]*robotstxt.Group),
		agent:  agent,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Allowed reports whether rawURL may be fetched
func (r *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	if r == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	group := r.group(ctx, u)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (r *RobotsPolicy) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[u.Host]; ok {
		return group
	}

	var group *robotstxt.Group
	if data := r.load(ctx, u.Scheme+"://"+u.Host+"/robots.txt"); data != nil {
		group = data.FindGroup(r.agent)
	}
	r.groups[u.Host] = group
	return group
}

func (r *RobotsPolicy) load(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
