package events

import "strings"

// Wildcard matches every event type.
const Wildcard = "*"

// MatchesPattern reports whether eventType is selected by pattern.
// "*" matches everything, "prefix.*" matches types starting with "prefix.",
// anything else must match exactly.
func MatchesPattern(pattern string, eventType EventType) bool {
	if pattern == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(string(eventType), prefix+".")
	}
	return pattern == string(eventType)
}
