package cleaner

import "strings"

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// newResult trims markdown and pairs it with its word count, keeping the
// invariant that an empty result has zero words and vice versa.
func newResult(markdown string) FilterResult {
	markdown = strings.TrimSpace(markdown)
	n := WordCount(markdown)
	if n == 0 {
		return FilterResult{}
	}
	return FilterResult{Markdown: markdown, WordCount: n}
}
