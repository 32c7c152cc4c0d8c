package cleaner

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// alwaysExcluded never carries readable content.
var alwaysExcluded = []string{
	"script", "style", "noscript", "iframe", "svg", "canvas", "template",
	"form", "button", "input", "select", "textarea",
}

// compileExclusions builds one selector group from tag names or arbitrary
// CSS selectors.
func compileExclusions(extra []string) (cascadia.SelectorGroup, error) {
	parts := make([]string, 0, len(alwaysExcluded)+len(extra))
	parts = append(parts, alwaysExcluded...)
	for _, s := range extra {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return cascadia.ParseGroup(strings.Join(parts, ", "))
}

// removeMatching detaches every node matching sel from the tree rooted at doc.
func removeMatching(doc *html.Node, sel cascadia.Matcher) {
	for _, n := range cascadia.QueryAll(doc, sel) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}
