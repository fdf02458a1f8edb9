package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCall struct {
	attempts int
	fails    int
	err      error
}

func (c *countingCall) run(context.Context) (string, error) {
	c.attempts++
	if c.attempts <= c.fails {
		return "", c.err
	}
	return "ok", nil
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()
	call := &countingCall{fails: 2, err: fmt.Errorf("boom: %w", ErrTransientFetch)}
	var hooked []int

	got, err := Retry(context.Background(), NewFixedRetryPolicy(3, time.Millisecond),
		func(attempt int, _ error) { hooked = append(hooked, attempt) }, call.run)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, call.attempts)
	assert.Equal(t, []int{1, 2}, hooked)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	call := &countingCall{fails: 5, err: ErrTransientFetch}

	_, err := Retry(context.Background(), NewFixedRetryPolicy(3, 0), nil, call.run)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFetch)
	assert.Equal(t, 3, call.attempts)
}

func TestRetry_SoftMissIsTerminal(t *testing.T) {
	t.Parallel()
	attempts := 0
	got, err := Retry(context.Background(), NewFixedRetryPolicy(3, 0), nil, func(context.Context) (string, error) {
		attempts++
		return "fallback", fmt.Errorf("404: %w", ErrSoftMiss)
	})

	assert.True(t, IsSoftMiss(err))
	assert.Equal(t, "fallback", got)
	assert.Equal(t, 1, attempts)
}

func TestRetry_StopsWhenContextEnds(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	call := &countingCall{fails: 5, err: errors.New("down")}

	_, err := Retry(ctx, NewFixedRetryPolicy(3, time.Hour), func(int, error) { cancel() }, call.run)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, call.attempts)
}

func TestFixedRetryPolicy(t *testing.T) {
	t.Parallel()
	p := NewFixedRetryPolicy(0, -time.Second)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts())
	assert.Equal(t, time.Duration(0), p.Backoff(1))

	p = NewFixedRetryPolicy(3, 10*time.Second)
	assert.Equal(t, 10*time.Second, p.Backoff(2))
	assert.True(t, p.ShouldRetry(errors.New("x"), 1))
	assert.True(t, p.ShouldRetry(errors.New("x"), 2))
	assert.False(t, p.ShouldRetry(errors.New("x"), 3))
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(ErrSoftMiss, 1))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))

	never := p.WithPredicate(func(error) bool { return false })
	assert.False(t, never.ShouldRetry(errors.New("x"), 1))
	assert.True(t, p.ShouldRetry(errors.New("x"), 1))
}
