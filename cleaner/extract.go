package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links holds the absolute http(s) links of a page, split by host.
type Links struct {
	Internal []string
	External []string
}

// ExtractLinks parses the raw HTML and separates links into internal and external
// based on whether their host matches the source URL's host. Fragments are
// dropped and duplicates removed; document order is kept.
func ExtractLinks(rawHTML string, sourceURL string) Links {
	var result Links

	base, err := url.Parse(sourceURL)
	if err != nil {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return result
	}

	srcHost := base.Host

	// <base href> overrides the document URL for relative links.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		// Skip javascript:, mailto:, tel: etc.
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		resolved.RawFragment = ""

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}

		if strings.EqualFold(resolved.Host, srcHost) {
			result.Internal = append(result.Internal, absURL)
		} else {
			result.External = append(result.External, absURL)
		}
	})

	return result
}

// ExtractTitle returns the document <title>, falling back to the first <h1>.
func ExtractTitle(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapseSpace(doc.Find("h1").First().Text())
}
