package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrawlError_IsMatchesCategory(t *testing.T) {
	t.Parallel()

	badURL := NewCrawlError(ErrCodeInvalidURL, "seed must be absolute", nil)
	badRange := NewCrawlError(ErrCodeInvalidRange, "max_pages out of range", nil)

	assert.ErrorIs(t, badURL, ErrInvalidInput)
	assert.ErrorIs(t, badRange, ErrInvalidInput)
	assert.NotErrorIs(t, badURL, ErrNotFound)

	wrapped := fmt.Errorf("submit: %w", badRange)
	assert.ErrorIs(t, wrapped, ErrInvalidInput)

	var ce *CrawlError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, ErrCodeInvalidRange, ce.Code)
}

func TestCrawlError_UnwrapAndMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewCrawlError(ErrCodeIOFailure, "write cache entry", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.Equal(t, "IO_FAILURE: write cache entry: disk full", err.Error())
	assert.Equal(t, &ErrorDetail{Code: ErrCodeIOFailure, Message: "write cache entry"}, err.ToDetail())
}

func TestJobState_Transitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to JobState
		ok       bool
	}{
		{JobPending, JobDiscovering, true},
		{JobDiscovering, JobFetching, true},
		{JobDiscovering, JobFailed, true},
		{JobFetching, JobFinalizing, true},
		{JobFetching, JobFailed, true},
		{JobFinalizing, JobCompleted, true},
		{JobFinalizing, JobCancelled, true},
		{JobPending, JobCancelled, true},
		{JobFetching, JobDiscovering, false},
		{JobPending, JobCompleted, false},
		{JobCompleted, JobCancelled, false},
		{JobFailed, JobFetching, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
