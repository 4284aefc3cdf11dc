package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleRobots = `
# global rules
User-agent: *
Disallow: /private/
Disallow: /tmp/

User-agent: webaudit
Disallow: /quarantine/

User-agent: googlebot
Disallow: /
`

func TestParseRobotsWildcardGroup(t *testing.T) {
	rules := parseRobots(sampleRobots, "somebot/2.0")

	assert.False(t, rules.Allowed("/private/data"))
	assert.False(t, rules.Allowed("/tmp/x"))
	assert.True(t, rules.Allowed("/public"))
	assert.True(t, rules.Allowed("/quarantine/x"), "other agents' rules do not apply")
}

func TestParseRobotsMatchingAgentWins(t *testing.T) {
	rules := parseRobots(sampleRobots, "webaudit/1.0")

	assert.False(t, rules.Allowed("/quarantine/x"))
	assert.True(t, rules.Allowed("/private/data"), "matched group replaces the wildcard group")
}

func TestParseRobotsSharedAgentRun(t *testing.T) {
	body := `
User-agent: alpha
User-agent: beta
Disallow: /shared/
`
	assert.False(t, parseRobots(body, "beta/1.0").Allowed("/shared/x"))
	assert.False(t, parseRobots(body, "alpha").Allowed("/shared/x"))
	assert.True(t, parseRobots(body, "gamma").Allowed("/shared/x"))
}

func TestParseRobotsEmptyDisallowIgnored(t *testing.T) {
	body := `
User-agent: *
Disallow:
`
	assert.True(t, parseRobots(body, "any").Allowed("/anything"))
}

func TestRobotsRulesNilSafe(t *testing.T) {
	var rules *robotsRules
	assert.True(t, rules.Allowed("/x"))
}
