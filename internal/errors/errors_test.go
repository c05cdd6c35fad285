package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	err := New(ErrCodeFeedUnavailable, "feed host unreachable", nil)

	assert.Equal(t, CategoryFeed, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, "[ERR_301_FEED_UNAVAILABLE] feed host unreachable", err.Error())
}

func TestNew_StorageCodes(t *testing.T) {
	assert.Equal(t, CategoryStorage, New(ErrCodeWriteFailed, "x", nil).Category)
	assert.Equal(t, SeverityFatal, New(ErrCodeIndexCorrupt, "x", nil).Severity)
	assert.False(t, New(ErrCodeIndexCorrupt, "x", nil).Retryable)
	assert.True(t, New(ErrCodeOutOfMemory, "x", nil).Retryable)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := Wrap(ErrCodeWriteFailed, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Message)
	assert.Nil(t, Wrap(ErrCodeWriteFailed, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeQueryFailed, "one", nil)
	b := New(ErrCodeQueryFailed, "another", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New(ErrCodeInternal, "other", nil)))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeFeedParse, "bad feed", nil).
		WithDetail("podcast_id", "p1").
		WithDetail("feed_url", "https://example.com/rss")

	assert.Equal(t, "p1", err.Details["podcast_id"])
	assert.Equal(t, "https://example.com/rss", err.Details["feed_url"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(FeedError("down", nil)))
	assert.False(t, IsRetryable(QueryError("bad", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return fmt.Errorf("never reached after cancel")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, fmt.Errorf("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
