// Package simhash computes 64-bit SimHash fingerprints of page text and
// detects near-duplicate pages within a crawl.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"sync"
	"unicode"
)

// Fingerprint computes a 64-bit SimHash of text. Features are lowercased
// words plus adjacent word pairs, hashed with FNV-64a.
func Fingerprint(text string) uint64 {
	words := tokens(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	add := func(feature string) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}
	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// tokens splits text into lowercase words, dropping surrounding punctuation.
func tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

type entry struct {
	url string
	fp  uint64
}

// Index remembers the fingerprints of the pages seen by one crawl.
// It is safe for concurrent use.
type Index struct {
	mu        sync.Mutex
	threshold int
	entries   []entry
}

// NewIndex creates an Index that treats fingerprints within threshold bits
// as duplicates.
func NewIndex(threshold int) *Index {
	return &Index{threshold: threshold}
}

// Check records text under url and returns the URL of the first earlier page
// whose fingerprint is within the threshold, or "" if there is none.
// Empty text is never a duplicate and is not recorded.
func (x *Index) Check(url, text string) string {
	if len(tokens(text)) == 0 {
		return ""
	}
	fp := Fingerprint(text)

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.entries {
		if Similar(e.fp, fp, x.threshold) {
			x.entries = append(x.entries, entry{url: url, fp: fp})
			return e.url
		}
	}
	x.entries = append(x.entries, entry{url: url, fp: fp})
	return ""
}

// Len returns the number of recorded pages.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
