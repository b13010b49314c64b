package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	raw := errors.New("boom")
	typed := FromError(raw)
	require.Equal(t, ErrInternal.Code, typed.Code)
	require.ErrorIs(t, typed, raw)
}

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrForbidden)
	typed := FromError(wrapped)
	require.Equal(t, ErrForbidden.Code, typed.Code)
	require.Equal(t, ErrForbidden.Status, typed.Status)
}

func TestIsTransientMatchesNetworkMarkers(t *testing.T) {
	cases := map[string]bool{
		"dial tcp 127.0.0.1:5432: connect: connection refused": true,
		"read tcp: connection reset by peer":                   true,
		"write: broken pipe":                                   true,
		"dial tcp: lookup db: no such host":                    true,
		"context deadline exceeded":                            false,
		"pq: permission denied for table slides":               false,
		"duplicate key value violates unique constraint":       false,
	}
	for msg, want := range cases {
		require.Equal(t, want, IsTransient(errors.New(msg)), msg)
	}
}

func TestIsTransientHonoursErrorTaxonomy(t *testing.T) {
	require.True(t, IsTransient(ErrNetwork))
	require.True(t, IsTransient(Clone(ErrNetwork, "fetch failed")))
	require.False(t, IsTransient(ErrForbidden))
	require.False(t, IsTransient(ErrValidation))
	require.False(t, IsTransient(nil))

	// A typed internal error wrapping a transient cause is still retryable.
	wrapped := Wrap(errors.New("dial tcp: i/o timeout"), ErrInternal.Code, ErrInternal.Status, "query failed")
	require.True(t, IsTransient(wrapped))
}
