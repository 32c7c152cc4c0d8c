package cleaner

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Signal weights for the block scorer. They sum to 1.
const (
	wTextDensity = 0.4
	wLinkDensity = 0.2
	wTagWeight   = 0.2
	wClassID     = 0.1
	wTextLength  = 0.1
)

// blockSelector matches elements that start a block of their own.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, dt, dd, blockquote, pre, table, " +
	"div, section, article, main, figure, figcaption, address, ul, ol, dl"

var blockMatcher = cascadia.MustCompile(blockSelector)

// atomicTags are scored as a whole and never split into children.
var atomicTags = map[string]bool{"table": true, "pre": true}

var tagWeights = map[string]float64{
	"article":    1.5,
	"main":       1.4,
	"h1":         1.2,
	"h2":         1.1,
	"h3":         1.0,
	"section":    1.0,
	"p":          1.0,
	"h4":         0.9,
	"blockquote": 0.9,
	"pre":        0.9,
	"h5":         0.8,
	"table":      0.8,
	"h6":         0.7,
	"li":         0.6,
	"dt":         0.6,
	"dd":         0.6,
	"figcaption": 0.5,
	"div":        0.5,
	"span":       0.3,
}

// positiveClassIDPatterns are class/id tokens that indicate main content.
var positiveClassIDPatterns = []string{
	"content", "article", "post", "entry", "body", "main", "text", "story",
}

// negativeClassIDPatterns are class/id tokens that indicate boilerplate.
var negativeClassIDPatterns = []string{
	"sidebar", "ad", "ads", "advert", "widget", "nav", "navbar", "navigation", "menu", "comment",
	"footer", "header", "banner", "popup", "modal", "cookie", "social",
	"share", "related", "recommend", "promo", "breadcrumb", "pagination",
}

var classTokenRe = regexp.MustCompile(`[^a-z0-9]+`)

// PruningOptions configures a PruningFilter.
type PruningOptions struct {
	Threshold    Threshold
	MinWords     int
	ExcludedTags []string
	Citations    bool
}

// PruningFilter keeps the blocks of a page that look like main content.
// The body is split into leaf blocks, each block is scored from its text
// density, link density, tag, class/id hints and length, and blocks at or
// above the threshold are converted to markdown in document order.
type PruningFilter struct {
	threshold Threshold
	minWords  int
	exclude   cascadia.SelectorGroup
	conv      *converter.Converter
	citations bool
}

// NewPruningFilter compiles the exclusion selectors and the markdown
// converter. It fails only on an invalid excluded-tag selector.
func NewPruningFilter(opts PruningOptions) (*PruningFilter, error) {
	exclude, err := compileExclusions(opts.ExcludedTags)
	if err != nil {
		return nil, err
	}
	if opts.Threshold == nil {
		opts.Threshold = DynamicThreshold{Base: 0.45, Quantile: 0.5}
	}
	return &PruningFilter{
		threshold: opts.Threshold,
		minWords:  opts.MinWords,
		exclude:   exclude,
		conv:      newMarkdownConverter(),
		citations: opts.Citations,
	}, nil
}

// block is a scored candidate.
type block struct {
	html  string
	score float64
}

func (f *PruningFilter) Filter(rawHTML, sourceURL string) (res FilterResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pruning: filter panicked, returning empty content", "url", sourceURL, "panic", r)
			res = FilterResult{}
		}
	}()

	if strings.TrimSpace(rawHTML) == "" {
		return FilterResult{}
	}

	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return FilterResult{}
	}
	removeMatching(root, f.exclude)

	doc := goquery.NewDocumentFromNode(root)
	body := doc.Find("body")
	if body.Length() == 0 {
		return FilterResult{}
	}

	wrapLooseText(body.Get(0), true)
	var candidates []*goquery.Selection
	collectBlocks(body, &candidates)

	eligible := make([]block, 0, len(candidates))
	scores := make([]float64, 0, len(candidates))
	for _, sel := range candidates {
		text := collapseSpace(sel.Text())
		if WordCount(text) < f.minWords || text == "" {
			continue
		}
		outer, err := goquery.OuterHtml(sel)
		if err != nil {
			continue
		}
		s := scoreBlock(sel, text, outer)
		eligible = append(eligible, block{html: wrapOrphan(sel, outer), score: s})
		scores = append(scores, s)
	}
	if len(eligible) == 0 {
		return FilterResult{}
	}

	cutoff := f.threshold.Cutoff(scores)
	var buf strings.Builder
	for _, b := range eligible {
		if b.score >= cutoff {
			buf.WriteString(b.html)
			buf.WriteString("\n")
		}
	}
	if buf.Len() == 0 {
		return FilterResult{}
	}

	md, err := ToMarkdown(f.conv, buf.String(), sourceURL)
	if err != nil {
		slog.Debug("pruning: markdown conversion failed", "url", sourceURL, "error", err)
		return FilterResult{}
	}
	if f.citations {
		md = ConvertToCitations(md)
	}
	return newResult(md)
}

// collectBlocks appends the leaf blocks under sel in document order.
// An element is a leaf block when it contains no nested block element,
// or when it is atomic (tables, preformatted text).
func collectBlocks(sel *goquery.Selection, out *[]*goquery.Selection) {
	sel.Children().Each(func(_ int, child *goquery.Selection) {
		tag := goquery.NodeName(child)
		if atomicTags[tag] || child.FindMatcher(blockMatcher).Length() == 0 {
			*out = append(*out, child)
			return
		}
		collectBlocks(child, out)
	})
}

// wrapLooseText moves each run of text and inline elements that sits beside
// a block element into a synthetic <p>, so the run is scored like any other
// leaf block. force applies the wrapping even when n has no block children,
// which is what body needs.
func wrapLooseText(n *html.Node, force bool) {
	if !force && !hasBlockChild(n) {
		return
	}
	var run []*html.Node
	flush := func() {
		if len(run) > 0 && strings.TrimSpace(runText(run)) != "" {
			p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
			n.InsertBefore(p, run[0])
			for _, c := range run {
				n.RemoveChild(c)
				p.AppendChild(c)
			}
		}
		run = nil
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isBlockish(c) {
			flush()
			if !atomicTags[c.Data] {
				wrapLooseText(c, false)
			}
		} else {
			run = append(run, c)
		}
		c = next
	}
	flush()
}

// isBlockish reports whether n is a block element or wraps one.
func isBlockish(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	return blockMatcher.Match(n) || hasBlockChild(n)
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isBlockish(c) {
			return true
		}
	}
	return false
}

func runText(nodes []*html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String()
}

// wrapOrphan restores the list container of list items so they render as
// list entries.
func wrapOrphan(sel *goquery.Selection, outer string) string {
	switch goquery.NodeName(sel) {
	case "li":
		if goquery.NodeName(sel.Parent()) == "ol" {
			return "<ol>" + outer + "</ol>"
		}
		return "<ul>" + outer + "</ul>"
	case "dt", "dd":
		return "<dl>" + outer + "</dl>"
	}
	return outer
}

// scoreBlock computes the weighted score of a block, roughly in [-0.1, 1.3].
func scoreBlock(sel *goquery.Selection, text, outer string) float64 {
	textLen := utf8.RuneCountInString(text)
	tagLen := utf8.RuneCountInString(outer)

	textDensity := 0.0
	if tagLen > 0 {
		textDensity = math.Min(1, float64(textLen)/float64(tagLen))
	}

	linkLen := 0
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += utf8.RuneCountInString(collapseSpace(a.Text()))
	})
	if goquery.NodeName(sel) == "a" {
		linkLen = textLen
	}
	linkScore := 1.0
	if textLen > 0 {
		linkScore = 1 - math.Min(1, float64(linkLen)/float64(textLen))
	}

	tagW, ok := tagWeights[goquery.NodeName(sel)]
	if !ok {
		tagW = 0.5
	}

	lengthScore := math.Min(1, math.Log10(float64(textLen)+1)/3)

	return textDensity*wTextDensity +
		linkScore*wLinkDensity +
		tagW*wTagWeight +
		classIDWeight(sel)*wClassID +
		lengthScore*wTextLength
}

// classIDWeight scores class and id hints of the block itself (+-0.5 each
// direction) and penalises blocks nested in boilerplate containers.
func classIDWeight(sel *goquery.Selection) float64 {
	score := 0.0
	own := classIDTokens(sel)
	if hasPattern(own, positiveClassIDPatterns) {
		score += 0.5
	}
	if hasPattern(own, negativeClassIDPatterns) {
		score -= 0.5
	}

	penalised := false
	sel.ParentsUntil("body").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if hasPattern(classIDTokens(p), negativeClassIDPatterns) {
			penalised = true
			return false
		}
		return true
	})
	if penalised {
		score -= 0.5
	}
	return math.Max(-1, math.Min(1, score))
}

func classIDTokens(sel *goquery.Selection) []string {
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	combined := strings.ToLower(class + " " + id)
	return strings.Fields(classTokenRe.ReplaceAllString(combined, " "))
}

// hasPattern matches whole tokens, or token prefixes for patterns of four
// or more letters ("sidebar2", "navigation").
func hasPattern(tokens, patterns []string) bool {
	for _, tok := range tokens {
		for _, pat := range patterns {
			if tok == pat || (len(pat) >= 4 && strings.HasPrefix(tok, pat)) {
				return true
			}
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
