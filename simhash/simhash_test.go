package simhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	base := "the quick brown fox jumps over the lazy dog near the river bank"

	assert.Equal(t, Fingerprint(base), Fingerprint(base), "deterministic")
	assert.Equal(t, Fingerprint(base), Fingerprint("The QUICK brown fox, jumps over the lazy dog near the river bank."),
		"case and punctuation are ignored")
	assert.Equal(t, uint64(0), Fingerprint(""))
	assert.Equal(t, uint64(0), Fingerprint("  \t\n "))
	assert.Equal(t, uint64(0), Fingerprint("-- ... !!"))

	near := "the quick brown fox leaps over the lazy dog near the river bank"
	far := "quarterly revenue grew while operating expenses declined across regions"
	assert.Less(t, Distance(Fingerprint(base), Fingerprint(near)), Distance(Fingerprint(base), Fingerprint(far)))
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0b1010, 0b0101, 4},
		{^uint64(0), 0, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b))
	}
	assert.True(t, Similar(0b111, 0b000, 3))
	assert.False(t, Similar(0b1111, 0b0000, 3))
}

func TestIndex_Check(t *testing.T) {
	idx := NewIndex(3)
	text := "Install the agent, then configure the collector endpoint and restart the service."

	assert.Equal(t, "", idx.Check("https://example.com/a", text))
	assert.Equal(t, "https://example.com/a", idx.Check("https://example.com/b", text))
	assert.Equal(t, "", idx.Check("https://example.com/c", "Pricing plans for teams of every size with annual billing discounts"))
	assert.Equal(t, "", idx.Check("https://example.com/empty", ""))
	assert.Equal(t, 3, idx.Len())
}
