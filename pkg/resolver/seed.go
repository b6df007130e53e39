package resolver

import "regexp"

// seedRule maps an action name pattern to the argument key that should
// carry the previous step's result.
type seedRule struct {
	pattern *regexp.Regexp
	argKey  string
}

// seedRules are checked in order; first match wins. Narrow by intent:
// posting actions want content, searching actions want a query, lookups
// want an identifier.
var seedRules = []seedRule{
	{regexp.MustCompile(`(?i)(tweet|post|publish|send)`), "content"},
	{regexp.MustCompile(`(?i)(search|query|find|lookup)`), "query"},
	{regexp.MustCompile(`(?i)(get|fetch|read|retrieve)`), "id"},
}

// SeedInput derives arguments for a step that has none, from the raw
// result of the previous step. Returns nil when no rule matches — the
// step then proceeds with empty args and the adapter decides.
func SeedInput(action string, lastResult string) map[string]any {
	if lastResult == "" {
		return nil
	}
	for _, rule := range seedRules {
		if rule.pattern.MatchString(action) {
			return map[string]any{rule.argKey: lastResult}
		}
	}
	return nil
}
