package memory

import "strings"

// ResponseMetrics buckets an assistant reply by word count: under 100 words
// is short, up to 300 is medium, anything longer is long.
func ResponseMetrics(content string) (int, string) {
	words := len(strings.Fields(content))
	switch {
	case words < 100:
		return words, "short"
	case words <= 300:
		return words, "medium"
	default:
		return words, "long"
	}
}
