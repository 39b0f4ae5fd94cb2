package digest

import "strings"

// TriggerMatcher decides whether a message asks for a summary.
type TriggerMatcher struct {
	tokens []string
}

// NewTriggerMatcher ignores blank tokens.
func NewTriggerMatcher(tokens []string) *TriggerMatcher {
	m := &TriggerMatcher{}
	for _, token := range tokens {
		if strings.TrimSpace(token) != "" {
			m.tokens = append(m.tokens, token)
		}
	}
	return m
}

// Match reports whether text contains any trigger token as a case-sensitive substring.
func (m *TriggerMatcher) Match(text string) bool {
	for _, token := range m.tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
