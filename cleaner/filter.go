package cleaner

import (
	"fmt"
	"sort"

	"github.com/use-agent/sitecrawl/config"
)

// FilterResult is the output of a content filter.
// WordCount is zero exactly when Markdown is empty.
type FilterResult struct {
	Markdown  string
	WordCount int
}

// ContentFilter turns raw page HTML into filtered markdown. Implementations
// are deterministic, perform no I/O, and never fail: input they cannot make
// sense of yields an empty result.
type ContentFilter interface {
	Filter(rawHTML, sourceURL string) FilterResult
}

// Threshold computes the score cutoff for a page from the scores of its
// eligible blocks. Blocks scoring at or above the cutoff are retained.
type Threshold interface {
	Cutoff(scores []float64) float64
}

// FixedThreshold is a constant cutoff.
type FixedThreshold float64

func (t FixedThreshold) Cutoff([]float64) float64 { return float64(t) }

// DynamicThreshold uses Base while any block reaches it. On pages where no
// block does, the cutoff drops to the Quantile of the page's own scores, so
// the best block of a sparse page is always kept.
type DynamicThreshold struct {
	Base     float64
	Quantile float64
}

func (t DynamicThreshold) Cutoff(scores []float64) float64 {
	if len(scores) == 0 {
		return t.Base
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	if sorted[len(sorted)-1] >= t.Base {
		return t.Base
	}
	return quantile(sorted, t.Quantile)
}

// quantile returns the q-quantile of sorted values with linear interpolation.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// NewFilter builds the content filter selected by cfg.Strategy.
func NewFilter(cfg config.FilterConfig) (ContentFilter, error) {
	var threshold Threshold
	switch cfg.ThresholdType {
	case "fixed":
		threshold = FixedThreshold(cfg.Threshold)
	case "dynamic", "":
		threshold = DynamicThreshold{Base: cfg.Threshold, Quantile: cfg.Quantile}
	default:
		return nil, fmt.Errorf("cleaner: unknown threshold type %q", cfg.ThresholdType)
	}

	citations := cfg.LinkStyle == "citations"

	switch cfg.Strategy {
	case "pruning", "":
		return NewPruningFilter(PruningOptions{
			Threshold:    threshold,
			MinWords:     cfg.MinWords,
			ExcludedTags: cfg.ExcludedTags,
			Citations:    citations,
		})
	case "readability":
		return NewReadabilityFilter(cfg.MinWords, citations), nil
	default:
		return nil, fmt.Errorf("cleaner: unknown filter strategy %q", cfg.Strategy)
	}
}
