package assistant

import (
	"fmt"
	"strings"
)

var greetingPhrases = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"hiya":           {},
	"howdy":          {},
	"greetings":      {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
	"hi there":       {},
	"hello there":    {},
}

// greetingReply short-circuits bare greetings so they never reach the model.
func greetingReply(name, text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".,!?")
	if _, ok := greetingPhrases[normalized]; !ok {
		return "", false
	}
	if name == "" {
		return "Hello! Ask me about your projects, your team, or anything you are working on.", true
	}
	return fmt.Sprintf("Hello %s! Ask me about your projects, your team, or anything you are working on.", name), true
}
