package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorType
	}{
		{&StatusError{Provider: "x", StatusCode: 401}, ErrorAuth},
		{&StatusError{Provider: "x", StatusCode: 403}, ErrorAuth},
		{&StatusError{Provider: "x", StatusCode: 429}, ErrorRate},
		{&StatusError{Provider: "x", StatusCode: 529}, ErrorTransient},
		{&StatusError{Provider: "x", StatusCode: 500}, ErrorTransient},
		{&StatusError{Provider: "x", StatusCode: 400, Body: "prompt exceeds context length"}, ErrorContext},
		{&StatusError{Provider: "x", StatusCode: 400, Body: "bad request"}, ErrorPermanent},
		{fmt.Errorf("wrapped: %w", ErrMissingKey), ErrorAuth},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTransient},
		{errors.New("read: connection reset by peer"), ErrorTransient},
		{errors.New("weird"), ErrorPermanent},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ClassifyError(c.err), c.err.Error())
	}
	require.Equal(t, ErrorType(""), ClassifyError(nil))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	require.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", now))
	require.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http1123), now))
	require.Zero(t, parseRetryAfter("", now))
	require.Zero(t, parseRetryAfter("soon", now))
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

func TestRetryAfterAndStatusCodeUnwrap(t *testing.T) {
	err := fmt.Errorf("generate: %w", &StatusError{Provider: "anthropic", StatusCode: 429, RetryAfter: 2 * time.Second})
	require.Equal(t, 2*time.Second, RetryAfter(err))
	require.Equal(t, 429, StatusCode(err))
	require.Zero(t, RetryAfter(errors.New("x")))
}
