package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

// ReadabilityFilter extracts the main article with Mozilla's Readability
// algorithm and converts it to markdown. Pages where readability finds
// fewer than minWords words yield empty content.
type ReadabilityFilter struct {
	minWords  int
	conv      *converter.Converter
	citations bool
}

// NewReadabilityFilter creates a ReadabilityFilter.
func NewReadabilityFilter(minWords int, citations bool) *ReadabilityFilter {
	return &ReadabilityFilter{
		minWords:  minWords,
		conv:      newMarkdownConverter(),
		citations: citations,
	}
}

func (f *ReadabilityFilter) Filter(rawHTML, sourceURL string) (res FilterResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("readability: filter panicked, returning empty content", "url", sourceURL, "panic", r)
			res = FilterResult{}
		}
	}()

	if strings.TrimSpace(rawHTML) == "" {
		return FilterResult{}
	}

	var pageURL *nurl.URL
	if sourceURL != "" {
		if u, err := nurl.Parse(sourceURL); err == nil {
			pageURL = u
		}
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		slog.Debug("readability: extraction failed", "url", sourceURL, "error", err)
		return FilterResult{}
	}
	if WordCount(article.TextContent) < f.minWords {
		return FilterResult{}
	}

	md, err := ToMarkdown(f.conv, article.Content, sourceURL)
	if err != nil {
		return FilterResult{}
	}
	if f.citations {
		md = ConvertToCitations(md)
	}
	return newResult(md)
}
