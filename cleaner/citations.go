package cleaner

import (
	"fmt"
	"regexp"
	"strings"
)

// inlineLinkRe matches Markdown inline links [text](url), including the
// optional image marker so images can be left alone.
var inlineLinkRe = regexp.MustCompile(`(!?)\[([^\]]+)\]\(([^)\s]+)\)`)

// ConvertToCitations rewrites inline links as numbered references listed
// after the content:
//
//	See [Go](https://go.dev) -> See [Go][1] ... [1]: https://go.dev
//
// Repeated URLs share a number. Images stay inline.
func ConvertToCitations(markdown string) string {
	urlToNum := make(map[string]int)
	var refs []string

	result := inlineLinkRe.ReplaceAllStringFunc(markdown, func(match string) string {
		parts := inlineLinkRe.FindStringSubmatch(match)
		if len(parts) != 4 || parts[1] == "!" {
			return match
		}
		text, target := parts[2], parts[3]

		num, ok := urlToNum[target]
		if !ok {
			num = len(refs) + 1
			urlToNum[target] = num
			refs = append(refs, fmt.Sprintf("[%d]: %s", num, target))
		}
		return fmt.Sprintf("[%s][%d]", text, num)
	})

	if len(refs) == 0 {
		return markdown
	}
	return result + "\n\n---\n" + strings.Join(refs, "\n")
}
