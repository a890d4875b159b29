package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsRetryable(fmt.Errorf("lock lot: %w", &pgconn.PgError{Code: "40001"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}

func TestRetryAbortedRerunsDeadlockedTransactions(t *testing.T) {
	calls := 0
	err := retryAborted(context.Background(), 3, func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryAbortedGivesUp(t *testing.T) {
	calls := 0
	err := retryAborted(context.Background(), 3, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsRetryable(err))
	require.Equal(t, 3, calls)

	calls = 0
	err = retryAborted(context.Background(), 3, func() error {
		calls++
		return errors.New("over delivery")
	})
	require.EqualError(t, err, "over delivery")
	require.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	_ = retryAborted(ctx, 3, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.Equal(t, 1, calls)
}
