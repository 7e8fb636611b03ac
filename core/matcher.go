package core

import "strings"

// Matcher determines whether a registered topic filter matches a delivered topic.
type Matcher interface {
	Match(filter string, topic string) bool
}

// ExactMatcher matches only identical topic strings.
type ExactMatcher struct{}

func (ExactMatcher) Match(filter, topic string) bool { return filter == topic }

// FilterMatcher implements MQTT topic filters: levels are separated by "/",
// "+" matches exactly one level and a trailing "#" matches the parent level
// and any number of child levels.
//
// Examples:
//
//	"sensors/temp"   matches "sensors/temp"          (exact)
//	"sensors/+"      matches "sensors/temp"          (single-level)
//	"sensors/+"      does NOT match "sensors/a/temp"
//	"sensors/#"      matches "sensors/a/temp"        (multi-level)
//	"sensors/#"      matches "sensors"
//
// Topics starting with "$" are never matched by a filter starting with a wildcard.
type FilterMatcher struct{}

func (FilterMatcher) Match(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")

	for i, f := range fParts {
		switch f {
		case "#":
			// only valid as the last level
			return i == len(fParts)-1
		case "+":
			if i >= len(tParts) {
				return false
			}
		default:
			if i >= len(tParts) || f != tParts[i] {
				return false
			}
		}
	}
	return len(fParts) == len(tParts)
}
