// Package export renders crawl results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/models"
)

// DefaultContentBudget is the Content column limit in characters.
const DefaultContentBudget = 1000

// Header is the fixed column order.
var Header = []string{"URL", "Title", "Content", "Word Count", "Status", "Timestamp"}

// Truncate returns at most budget runes of s. It never splits a UTF-8
// sequence.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	n := 0
	for i := range s {
		if n == budget {
			return s[:i]
		}
		n++
	}
	return s
}

// WriteCSV writes results to w. Content is reduced to plain text and
// truncated to budget characters; a budget of zero or less uses
// DefaultContentBudget.
func WriteCSV(w io.Writer, results []models.PageResult, budget int) error {
	if budget <= 0 {
		budget = DefaultContentBudget
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.URL,
			r.Title,
			Truncate(cleaner.PlainText(r.Content), budget),
			strconv.Itoa(r.WordCount),
			string(r.Status),
			r.FetchedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write %s: %w", r.URL, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the attachment name for an export made at t.
func FileName(t time.Time) string {
	return "crawl_results_" + t.UTC().Format("20060102_150405") + ".csv"
}
