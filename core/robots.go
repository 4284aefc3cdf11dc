package core

import (
	"context"
	"net/url"
	"strings"
)

// robotsRules holds the Disallow prefixes that apply to this scanner,
// parsed once per scan from the target host's robots.txt.
type robotsRules struct {
	disallow []string
}

// fetchRobots retrieves and parses robots.txt for the target's origin.
// A missing or unreadable robots.txt yields empty rules (everything
// allowed), never an error that would block the crawl.
func fetchRobots(ctx context.Context, fetcher *Fetcher, target *url.URL, userAgent string) *robotsRules {
	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"

	result, err := fetcher.Get(ctx, robotsURL)
	if err != nil || result.StatusCode != 200 {
		return &robotsRules{}
	}

	return parseRobots(string(result.Body), userAgent)
}

type robotsGroup struct {
	agents   []string
	disallow []string
}

// parseRobots extracts Disallow rules from the group matching our user
// agent, falling back to the wildcard group. Only prefix matching is
// implemented; Allow overrides and path wildcards are not.
func parseRobots(body, userAgent string) *robotsRules {
	agent := strings.ToLower(userAgent)
	if i := strings.IndexAny(agent, "/ "); i > 0 {
		agent = agent[:i]
	}

	var groups []*robotsGroup
	var current *robotsGroup
	inAgentRun := false

	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			// Consecutive user-agent lines share one group.
			if !inAgentRun {
				current = &robotsGroup{}
				groups = append(groups, current)
				inAgentRun = true
			}
			current.agents = append(current.agents, strings.ToLower(value))
		case "disallow":
			inAgentRun = false
			if current != nil && value != "" {
				current.disallow = append(current.disallow, value)
			}
		default:
			inAgentRun = false
		}
	}

	var wildcard []string
	for _, g := range groups {
		for _, ua := range g.agents {
			if ua == "*" {
				wildcard = append(wildcard, g.disallow...)
			} else if agent != "" && strings.Contains(agent, ua) {
				return &robotsRules{disallow: g.disallow}
			}
		}
	}
	return &robotsRules{disallow: wildcard}
}

// Allowed reports whether the path may be fetched under these rules.
func (r *robotsRules) Allowed(path string) bool {
	if r == nil || len(r.disallow) == 0 {
		return true
	}
	if path == "" {
		path = "/"
	}
	for _, prefix := range r.disallow {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}
