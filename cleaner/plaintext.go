package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdRefLinkRe  = regexp.MustCompile(`\[([^\]]*)\]\[\d+\]`)
	mdRefDefRe   = regexp.MustCompile(`(?m)^\[\d+\]:\s+\S+\s*$`)
	mdHeadingRe  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	mdListRe     = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	mdQuoteRe    = regexp.MustCompile(`(?m)^\s*>\s?`)
	mdRuleRe     = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	mdTableSepRe = regexp.MustCompile(`(?m)^\s*\|?(?:\s*:?-+:?\s*\|)+\s*:?-*:?\s*$`)
	mdEmphasisRe = regexp.MustCompile("(\\*\\*|__|\\*|_|~~|`+)")
)

// PlainText reduces markdown (or stray HTML) to single-spaced prose for
// spreadsheet cells: tags, images, link targets, heading and list markers,
// emphasis and table rules are dropped.
func PlainText(content string) string {
	if strings.Contains(content, "<") && strings.Contains(content, ">") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			content = doc.Text()
		}
	}

	content = mdImageRe.ReplaceAllString(content, "")
	content = mdLinkRe.ReplaceAllString(content, "$1")
	content = mdRefLinkRe.ReplaceAllString(content, "$1")
	content = mdRefDefRe.ReplaceAllString(content, "")
	content = mdTableSepRe.ReplaceAllString(content, "")
	content = mdRuleRe.ReplaceAllString(content, "")
	content = mdHeadingRe.ReplaceAllString(content, "")
	content = mdListRe.ReplaceAllString(content, "")
	content = mdQuoteRe.ReplaceAllString(content, "")
	content = mdEmphasisRe.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "|", " ")

	return collapseSpace(content)
}
